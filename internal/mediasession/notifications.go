package mediasession

import "liveclass-service/internal/domain"

// NotificationType names what changed.
type NotificationType string

const (
	NotifyConnection   NotificationType = "connection"
	NotifyError        NotificationType = "error"
	NotifyParticipants NotificationType = "participants"
	NotifyRecording    NotificationType = "recording"
	NotifyScreenShare  NotificationType = "screenShare"
	NotifyQuality      NotificationType = "quality"
)

// Notification is delivered to subscribers whenever session state changes.
type Notification struct {
	Type         NotificationType
	Connected    bool
	On           bool
	Err          error
	Quality      domain.ConnectionQuality
	Participants []domain.Participant
}

// Subscribe returns a channel of notifications.
// The caller must invoke the returned cancel function to avoid leaks.
func (m *Manager) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) notify(n Notification) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- n:
		default:
			// Slow subscriber: drop the oldest notification instead of blocking the session.
			select {
			case <-ch:
			default:
			}
			ch <- n
		}
	}
}

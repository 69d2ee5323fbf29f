package presence

import (
	"fmt"
	"log"
	"sync"
	"time"

	"liveclass-service/internal/domain"
)

// DefaultGracePeriod is how long a counterpart may be missing before it is flagged.
const DefaultGracePeriod = 5 * time.Minute

// Status is the monitor state for one session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWaiting Status = "waiting"
	StatusStarted Status = "started"
	StatusAbsent  Status = "absent"
)

// State describes one monitored session.
type State struct {
	Status Status
	Since  time.Time
}

// AbsenceEvent is raised when the grace period ran out before the lesson started.
type AbsenceEvent struct {
	Key            string
	Expected       domain.Role
	Since          time.Time
	ElapsedMinutes int
	Message        string
}

type window struct {
	since time.Time
	gen   uint64
}

// Monitor flags an absent counterpart. Each client only reports the side it can
// observe: a teacher reports missing students, a student reports a missing teacher.
// At most one timer is armed per key.
type Monitor struct {
	role     domain.Role
	grace    time.Duration
	clock    Clock
	onAbsent func(AbsenceEvent)

	mu      sync.Mutex
	gen     uint64
	closed  bool
	windows map[string]window
	timers  map[string]Timer
	states  map[string]Status
}

// NewMonitor builds a monitor for a client of the given role. A zero grace period
// means DefaultGracePeriod; a nil clock means the wall clock.
func NewMonitor(role domain.Role, grace time.Duration, clock Clock, onAbsent func(AbsenceEvent)) *Monitor {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Monitor{
		role:     role,
		grace:    grace,
		clock:    clock,
		onAbsent: onAbsent,
		windows:  make(map[string]window),
		timers:   make(map[string]Timer),
		states:   make(map[string]Status),
	}
}

// Wait enters the waiting state for key, replacing any armed timer.
func (m *Monitor) Wait(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.clearLocked(key)

	m.gen++
	gen := m.gen
	m.windows[key] = window{since: m.clock.Now(), gen: gen}
	m.states[key] = StatusWaiting
	m.timers[key] = m.clock.AfterFunc(m.grace, func() { m.expire(key, gen) })
}

// Start records that the lesson started and stops monitoring key.
func (m *Monitor) Start(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.clearLocked(key)
	m.states[key] = StatusStarted
}

// Forget stops monitoring key and drops its state.
func (m *Monitor) Forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(key)
	delete(m.states, key)
}

// Close cancels every timer; nothing pending at Close is ever reported.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for key := range m.timers {
		m.clearLocked(key)
	}
}

func (m *Monitor) State(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.states[key]
	if !ok {
		return State{Status: StatusIdle}
	}
	return State{Status: status, Since: m.windows[key].since}
}

// expire runs when the timer fires. The elapsed time is checked once, here.
func (m *Monitor) expire(key string, gen uint64) {
	m.mu.Lock()
	w, ok := m.windows[key]
	if m.closed || !ok || w.gen != gen || m.states[key] != StatusWaiting {
		m.mu.Unlock()
		return
	}
	delete(m.timers, key)
	elapsed := m.clock.Now().Sub(w.since)
	if elapsed < m.grace {
		m.mu.Unlock()
		return
	}
	m.states[key] = StatusAbsent
	expected := m.role.Counterpart()
	minutes := int(elapsed / time.Minute)
	ev := AbsenceEvent{
		Key:            key,
		Expected:       expected,
		Since:          w.since,
		ElapsedMinutes: minutes,
		Message:        fmt.Sprintf("%s absent after %d minutes", expected, minutes),
	}
	m.mu.Unlock()

	log.Printf("presence %s: %s", key, ev.Message)
	if m.onAbsent != nil {
		m.onAbsent(ev)
	}
}

func (m *Monitor) clearLocked(key string) {
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
	delete(m.windows, key)
}

package presence_test

import (
	"testing"
	"time"

	"liveclass-service/internal/domain"
	"liveclass-service/internal/presence"
)

var t0 = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

type recorder struct {
	events []presence.AbsenceEvent
}

func (r *recorder) record(ev presence.AbsenceEvent) {
	r.events = append(r.events, ev)
}

func TestAbsenceFiresAtGracePeriodNotBefore(t *testing.T) {
	clock := presence.NewManualClock(t0)
	rec := &recorder{}
	m := presence.NewMonitor(domain.RoleTeacher, 0, clock, rec.record)
	defer m.Close()

	m.Wait("room42")
	clock.Advance(5*time.Minute - time.Second)
	if len(rec.events) != 0 {
		t.Fatalf("absence fired before grace period: %+v", rec.events)
	}

	clock.Advance(time.Second)
	if len(rec.events) != 1 {
		t.Fatalf("expected one absence event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Expected != domain.RoleStudent || ev.Message != "student absent after 5 minutes" {
		t.Fatalf("teacher client must report the student absent, got %+v", ev)
	}
	if !ev.Since.Equal(t0) || ev.ElapsedMinutes != 5 {
		t.Fatalf("unexpected window %+v", ev)
	}
	if st := m.State("room42"); st.Status != presence.StatusAbsent {
		t.Fatalf("expected absent state, got %s", st.Status)
	}

	clock.Advance(time.Hour)
	if len(rec.events) != 1 {
		t.Fatalf("expected a single absence per waiting window")
	}
}

func TestStudentReportsTeacherAbsent(t *testing.T) {
	clock := presence.NewManualClock(t0)
	rec := &recorder{}
	m := presence.NewMonitor(domain.RoleStudent, 0, clock, rec.record)
	defer m.Close()

	m.Wait("room42")
	clock.Advance(6 * time.Minute)
	if len(rec.events) != 1 || rec.events[0].Expected != domain.RoleTeacher {
		t.Fatalf("expected teacher absent, got %+v", rec.events)
	}
}

func TestStartBeforeExpiryCancels(t *testing.T) {
	clock := presence.NewManualClock(t0)
	rec := &recorder{}
	m := presence.NewMonitor(domain.RoleTeacher, 0, clock, rec.record)
	defer m.Close()

	m.Wait("room42")
	clock.Advance(4 * time.Minute)
	m.Start("room42")
	if clock.Pending() != 0 {
		t.Fatalf("expected timer cancelled on start")
	}
	clock.Advance(time.Hour)

	if len(rec.events) != 0 {
		t.Fatalf("no absence may fire after start, got %+v", rec.events)
	}
	st := m.State("room42")
	if st.Status != presence.StatusStarted || !st.Since.IsZero() {
		t.Fatalf("expected started with waiting-since discarded, got %+v", st)
	}
}

func TestRewaitKeepsSingleTimer(t *testing.T) {
	clock := presence.NewManualClock(t0)
	rec := &recorder{}
	m := presence.NewMonitor(domain.RoleTeacher, 0, clock, rec.record)
	defer m.Close()

	m.Wait("room42")
	clock.Advance(2 * time.Minute)
	m.Wait("room42")
	m.Wait("room42")
	if clock.Pending() != 1 {
		t.Fatalf("expected exactly one armed timer, got %d", clock.Pending())
	}

	// The first window would have expired at t0+5m; the re-armed one expires at t0+7m.
	clock.Advance(4 * time.Minute)
	if len(rec.events) != 0 {
		t.Fatalf("stale timer fired: %+v", rec.events)
	}
	clock.Advance(time.Minute)
	if len(rec.events) != 1 {
		t.Fatalf("expected one absence from the re-armed window, got %d", len(rec.events))
	}
}

func TestPauseAfterStartRearms(t *testing.T) {
	clock := presence.NewManualClock(t0)
	rec := &recorder{}
	m := presence.NewMonitor(domain.RoleStudent, time.Minute, clock, rec.record)
	defer m.Close()

	m.Wait("room42")
	m.Start("room42")
	m.Wait("room42")
	clock.Advance(time.Minute)
	if len(rec.events) != 1 {
		t.Fatalf("expected re-armed window to fire, got %d", len(rec.events))
	}
}

func TestCloseCancelsEverything(t *testing.T) {
	clock := presence.NewManualClock(t0)
	rec := &recorder{}
	m := presence.NewMonitor(domain.RoleTeacher, 0, clock, rec.record)

	m.Wait("a")
	m.Wait("b")
	m.Close()
	m.Wait("c")
	clock.Advance(time.Hour)

	if len(rec.events) != 0 || clock.Pending() != 0 {
		t.Fatalf("expected nothing after close, events=%d pending=%d", len(rec.events), clock.Pending())
	}
}

func TestSystemClockFires(t *testing.T) {
	fired := make(chan presence.AbsenceEvent, 1)
	m := presence.NewMonitor(domain.RoleTeacher, 20*time.Millisecond, nil, func(ev presence.AbsenceEvent) {
		fired <- ev
	})
	defer m.Close()

	m.Wait("room42")
	select {
	case ev := <-fired:
		if ev.Key != "room42" {
			t.Fatalf("unexpected key %s", ev.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("absence never fired")
	}
}

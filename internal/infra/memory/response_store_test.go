package memory

import (
	"context"
	"testing"
	"time"

	"liveclass-service/internal/domain"
)

func TestResponseStoreOnePerStudent(t *testing.T) {
	store := NewResponseStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	first := domain.Response{ID: "r1", SessionID: "room42", SlideID: "s1", StudentID: "u1", OptionID: "b", CreatedAt: base}
	stored, err := store.InsertResponse(ctx, first)
	if err != nil || !stored {
		t.Fatalf("expected first insert stored, got %v %v", stored, err)
	}
	second := first
	second.ID, second.OptionID = "r2", "a"
	if stored, _ := store.InsertResponse(ctx, second); stored {
		t.Fatalf("expected second insert for same student rejected")
	}
	other := domain.Response{ID: "r0", SessionID: "room42", SlideID: "s1", StudentID: "u2", OptionID: "a", CreatedAt: base.Add(-time.Second)}
	_, _ = store.InsertResponse(ctx, other)

	list, err := store.ListResponses(ctx, "room42", "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "r0" || list[1].ID != "r1" {
		t.Fatalf("expected [r0 r1] ordered by creation, got %+v", list)
	}
	if empty, _ := store.ListResponses(ctx, "room42", "s2"); len(empty) != 0 {
		t.Fatalf("expected no responses for s2")
	}
}

func TestSlideStateStoreDefaultsToIdle(t *testing.T) {
	store := NewSlideStateStore()
	ctx := context.Background()

	state, _ := store.GetSlideState(ctx, "room42", "s1")
	if state.Phase != domain.PhaseIdle || state.SlideID != "s1" {
		t.Fatalf("expected idle default, got %+v", state)
	}
	_ = store.SetSlideState(ctx, domain.SlideState{SessionID: "room42", SlideID: "s1", Phase: domain.PhaseLocked})
	state, _ = store.GetSlideState(ctx, "room42", "s1")
	if !state.Locked() {
		t.Fatalf("expected locked, got %+v", state)
	}
}

package memory

import "testing"

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := store.GetOrCreate("room42", "deck-1")
	if session == nil {
		t.Fatalf("expected session")
	}
	if got, ok := store.Get("room42"); !ok || got.DeckID() != "deck-1" {
		t.Fatalf("expected session bound to deck-1, got %v %v", got, ok)
	}
	if again := store.GetOrCreate("room42", "deck-2"); again != session {
		t.Fatalf("expected existing session to be reused")
	}

	store.DeleteIfEmpty("room42")
	if _, ok := store.Get("room42"); ok {
		t.Fatalf("expected session removed when empty")
	}
}

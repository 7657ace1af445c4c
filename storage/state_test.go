package storage

import (
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	// Absent key reads as (nil, nil)
	value, err := store.Fetch("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != nil {
		t.Errorf("expected nil for absent key, got %q", value)
	}

	if err := store.Save("chat-state", []byte(`{"chats":[]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err = store.Fetch("chat-state")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != `{"chats":[]}` {
		t.Errorf("unexpected value: %q", value)
	}

	// Saving the same key again overwrites
	if err := store.Save("chat-state", []byte(`{"chats":[1]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, _ = store.Fetch("chat-state")
	if string(value) != `{"chats":[1]}` {
		t.Errorf("expected overwrite, got %q", value)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Save("k", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reopened.Close()

	value, err := reopened.Fetch("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected persisted value, got %q", value)
	}
}

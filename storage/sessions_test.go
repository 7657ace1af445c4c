package storage

import (
	"strings"
	"testing"

	"mcpchat/model"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Save(key string, value []byte) error {
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Fetch(key string) ([]byte, error) {
	return m.data[key], nil
}

func (m *memStore) Close() error { return nil }

func TestCurrentCreatesOnFirstUse(t *testing.T) {
	s, err := NewStore(newMemStore())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := s.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected a chat id")
	}
	if !strings.HasPrefix(first.ID, "chat-") {
		t.Errorf("expected id prefix 'chat-', got %q", first.ID)
	}
	if first.Title != "New chat" {
		t.Errorf("expected default title, got %q", first.Title)
	}

	again, err := s.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("expected stable current chat, got %q vs %q", again.ID, first.ID)
	}
}

func TestAppendMessageAndTitle(t *testing.T) {
	s, _ := NewStore(newMemStore())
	chat, _ := s.Current()

	if err := s.AppendMessage(chat.ID, model.NewUserTextMessage("how do I parse TOML in Go?")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(list))
	}
	if list[0].Title != "how do I parse TOML in Go?" {
		t.Errorf("expected derived title, got %q", list[0].Title)
	}
	if list[0].MessageCount != 1 {
		t.Errorf("expected 1 message, got %d", list[0].MessageCount)
	}
}

func TestSwitchChat(t *testing.T) {
	s, _ := NewStore(newMemStore())
	first, _ := s.Current()
	second, _ := s.CreateChat()

	cur, _ := s.Current()
	if cur.ID != second.ID {
		t.Fatalf("expected new chat to be current")
	}

	found, err := s.SwitchChat(first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected switch to find existing chat")
	}
	cur, _ = s.Current()
	if cur.ID != first.ID {
		t.Errorf("expected first chat current, got %q", cur.ID)
	}

	found, err = s.SwitchChat("chat-nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected miss for unknown chat id")
	}
	cur, _ = s.Current()
	if cur.ID != first.ID {
		t.Error("current chat should be unchanged after a miss")
	}
}

func TestDeleteCurrentChat(t *testing.T) {
	s, _ := NewStore(newMemStore())
	first, _ := s.Current()
	second, _ := s.CreateChat()

	// Deleting the current chat falls back to the most recent remaining
	cur, err := s.DeleteCurrentChat()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.ID != first.ID {
		t.Errorf("expected fallback to first chat, got %q", cur.ID)
	}
	if cur.ID == second.ID {
		t.Error("deleted chat should not remain current")
	}

	// Deleting the last chat creates a fresh one
	cur, err = s.DeleteCurrentChat()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.ID == first.ID || cur.ID == second.ID {
		t.Errorf("expected a fresh chat, got %q", cur.ID)
	}
	if cur.MessageCount != 0 {
		t.Error("fresh chat should be empty")
	}
}

func TestAddUsage(t *testing.T) {
	s, _ := NewStore(newMemStore())
	chat, _ := s.Current()

	s.AddUsage(chat.ID, model.TokenUsage{InputTokens: 10, OutputTokens: 5})
	s.AddUsage(chat.ID, model.TokenUsage{InputTokens: 7, OutputTokens: 3, CacheReadInputTokens: 100})

	usage, err := s.Usage(chat.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.InputTokens != 17 || usage.OutputTokens != 8 || usage.CacheReadInputTokens != 100 {
		t.Errorf("unexpected usage: %+v", usage)
	}
}

func TestHydrationRoundTrip(t *testing.T) {
	backing := newMemStore()

	s, _ := NewStore(backing)
	chat, _ := s.Current()
	s.AppendMessage(chat.ID, model.NewUserTextMessage("remember me"))
	s.AppendMessage(chat.ID, model.NewAssistantMessage([]model.ContentBlock{
		model.NewThinkingBlock("hm", "sig"),
		model.NewTextBlock("I will."),
	}))
	s.AddUsage(chat.ID, model.TokenUsage{InputTokens: 42})

	// A new store over the same backing sees the same state
	reloaded, err := NewStore(backing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cur, _ := reloaded.Current()
	if cur.ID != chat.ID {
		t.Fatalf("expected current chat %q after reload, got %q", chat.ID, cur.ID)
	}

	msgs, err := reloaded.Messages(chat.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "remember me" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if len(msgs[1].Blocks) != 2 || msgs[1].Blocks[0].Kind != model.BlockThinking {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}

	usage, _ := reloaded.Usage(chat.ID)
	if usage.InputTokens != 42 {
		t.Errorf("expected usage preserved, got %+v", usage)
	}

	// Loading without mutating must not change the snapshot
	before := string(backing.data[stateKey])
	if _, err := NewStore(backing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := string(backing.data[stateKey])
	if before != after {
		t.Error("load must not rewrite the snapshot")
	}
}

func TestHydrationToleratesCorruptSnapshot(t *testing.T) {
	backing := newMemStore()
	backing.data[stateKey] = []byte("{not json")

	s, err := NewStore(backing)
	if err != nil {
		t.Fatalf("expected corrupt snapshot to be discarded, got %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("expected empty store after corrupt snapshot")
	}
}

func TestListNewestFirst(t *testing.T) {
	s, _ := NewStore(newMemStore())
	first, _ := s.CreateChat()
	second, _ := s.CreateChat()

	// Force distinct creation times
	s.mu.Lock()
	s.chats[first.ID].CreatedAt = 100
	s.chats[second.ID].CreatedAt = 200
	s.mu.Unlock()

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("expected newest first, got %v", []string{list[0].ID, list[1].ID})
	}
}

func TestSearchMessages(t *testing.T) {
	s, _ := NewStore(newMemStore())
	chat, _ := s.Current()
	s.AppendMessage(chat.ID, model.NewUserTextMessage("how do goroutines work"))
	s.AppendMessage(chat.ID, model.NewAssistantMessage([]model.ContentBlock{
		model.NewTextBlock("They are lightweight threads."),
	}))
	s.AppendMessage(chat.ID, model.NewUserTextMessage("unrelated question about TOML"))

	matches := s.SearchMessages("goroutines")
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].ChatID != chat.ID {
		t.Errorf("unexpected chat id: %q", matches[0].ChatID)
	}
	if matches[0].MessageIndex != 0 {
		t.Errorf("expected match on first message, got index %d", matches[0].MessageIndex)
	}

	if got := s.SearchMessages(""); len(got) != 0 {
		t.Errorf("expected no matches for empty query, got %d", len(got))
	}
}

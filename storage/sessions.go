package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sahilm/fuzzy"

	"mcpchat/config"
	"mcpchat/model"
)

// stateKey is the single snapshot slot the whole conversation state
// lives under. Every mutation rewrites the full snapshot.
const stateKey = "chat-state"

type chatSnapshot struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	CreatedAt  int64            `json:"createdAt"`
	TokenUsage model.TokenUsage `json:"tokenUsage"`
	Messages   []model.Message  `json:"messages"`
}

type stateSnapshot struct {
	Chats         []chatSnapshot `json:"chats"`
	CurrentChatID string         `json:"currentChatId"`
}

// ChatSummary is a lightweight view of one chat for listing.
type ChatSummary struct {
	ID           string
	Title        string
	CreatedAt    int64
	MessageCount int
	Usage        model.TokenUsage
}

// Store keeps every chat in memory and writes the full snapshot to the
// backing store after each mutation. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	backing StateStore

	chats     map[string]*model.Chat
	currentID string
}

// NewStore hydrates the store from the backing snapshot. Chats that no
// longer parse are skipped rather than failing the whole load.
func NewStore(backing StateStore) (*Store, error) {
	s := &Store{
		backing: backing,
		chats:   make(map[string]*model.Chat),
	}

	data, err := backing.Fetch(stateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat state: %w", err)
	}
	if data == nil {
		return s, nil
	}

	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Store] Discarding unreadable snapshot: %v", err)
		}
		return s, nil
	}

	for _, cs := range snap.Chats {
		if cs.ID == "" {
			continue
		}
		s.chats[cs.ID] = &model.Chat{
			ID:        cs.ID,
			CreatedAt: cs.CreatedAt,
			Messages:  cs.Messages,
			Usage:     cs.TokenUsage,
		}
	}
	if _, ok := s.chats[snap.CurrentChatID]; ok {
		s.currentID = snap.CurrentChatID
	}

	return s, nil
}

func newChatID() string {
	return "chat-" + ulid.Make().String()
}

// CreateChat starts a fresh chat and makes it current.
func (s *Store) CreateChat() (ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := &model.Chat{
		ID:        newChatID(),
		CreatedAt: time.Now().UnixMilli(),
	}
	s.chats[chat.ID] = chat
	s.currentID = chat.ID

	if err := s.save(); err != nil {
		return ChatSummary{}, err
	}
	return summarize(chat), nil
}

// Current returns the active chat, creating one on first use.
func (s *Store) Current() (ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[s.currentID]
	if !ok {
		chat = &model.Chat{
			ID:        newChatID(),
			CreatedAt: time.Now().UnixMilli(),
		}
		s.chats[chat.ID] = chat
		s.currentID = chat.ID
		if err := s.save(); err != nil {
			return ChatSummary{}, err
		}
	}
	return summarize(chat), nil
}

// SwitchChat makes an existing chat current. The bool reports whether
// the chat was found; a miss is not an error.
func (s *Store) SwitchChat(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return false, nil
	}
	s.currentID = id
	return true, s.save()
}

// DeleteCurrentChat removes the active chat. The most recently created
// remaining chat becomes current; with none left a fresh chat is
// created so there is always an active chat.
func (s *Store) DeleteCurrentChat() (ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chats, s.currentID)

	var newest *model.Chat
	for _, chat := range s.chats {
		if newest == nil || chat.CreatedAt > newest.CreatedAt {
			newest = chat
		}
	}
	if newest == nil {
		newest = &model.Chat{
			ID:        newChatID(),
			CreatedAt: time.Now().UnixMilli(),
		}
		s.chats[newest.ID] = newest
	}
	s.currentID = newest.ID

	if err := s.save(); err != nil {
		return ChatSummary{}, err
	}
	return summarize(newest), nil
}

// AppendMessage appends one message to a chat and persists.
func (s *Store) AppendMessage(chatID string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s not found", chatID)
	}
	chat.Messages = append(chat.Messages, msg)
	return s.save()
}

// AddUsage folds one turn's token usage into a chat's counters.
func (s *Store) AddUsage(chatID string, usage model.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("chat %s not found", chatID)
	}
	chat.Usage.Add(usage)
	return s.save()
}

// Messages returns a copy of a chat's message history.
func (s *Store) Messages(chatID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s not found", chatID)
	}
	out := make([]model.Message, len(chat.Messages))
	copy(out, chat.Messages)
	return out, nil
}

// Usage returns a chat's cumulative token counters.
func (s *Store) Usage(chatID string) (model.TokenUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return model.TokenUsage{}, fmt.Errorf("chat %s not found", chatID)
	}
	return chat.Usage, nil
}

// List returns every chat, newest first.
func (s *Store) List() []ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChatSummary, 0, len(s.chats))
	for _, chat := range s.chats {
		out = append(out, summarize(chat))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// MessageMatch is one search hit across all chats.
type MessageMatch struct {
	ChatID       string
	ChatTitle    string
	MessageIndex int
	Role         model.Role
	Preview      string
	Score        int
}

// SearchMessages fuzzy-matches a query against every plain-text
// message across all chats, best matches first.
func (s *Store) SearchMessages(query string) []MessageMatch {
	if query == "" {
		return []MessageMatch{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type candidate struct {
		chatID string
		title  string
		index  int
		role   model.Role
		text   string
	}

	var candidates []candidate
	var texts []string
	for _, chat := range s.chats {
		title := chat.Title()
		for i, msg := range chat.Messages {
			text := messageText(msg)
			if text == "" {
				continue
			}
			candidates = append(candidates, candidate{
				chatID: chat.ID,
				title:  title,
				index:  i,
				role:   msg.Role,
				text:   text,
			})
			texts = append(texts, text)
		}
	}

	results := fuzzy.Find(query, texts)

	matches := make([]MessageMatch, 0, len(results))
	for _, r := range results {
		c := candidates[r.Index]
		preview := c.text
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		matches = append(matches, MessageMatch{
			ChatID:       c.chatID,
			ChatTitle:    c.title,
			MessageIndex: c.index,
			Role:         c.role,
			Preview:      preview,
			Score:        r.Score,
		})
	}
	return matches
}

// messageText flattens a message to its searchable text.
func messageText(msg model.Message) string {
	if msg.IsPlainText() {
		return msg.Text
	}
	var text string
	for _, b := range msg.Blocks {
		if b.Kind == model.BlockText && b.Text != "" {
			if text != "" {
				text += " "
			}
			text += b.Text
		}
	}
	return text
}

// ExportChat writes one chat as indented JSON to exportPath.
func (s *Store) ExportChat(chatID, exportPath string) error {
	s.mu.Lock()
	chat, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("chat %s not found", chatID)
	}
	snap := snapshotChat(chat)
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Exports contain conversation history (0600 - user-only access)
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// save persists the full snapshot. Caller holds s.mu.
func (s *Store) save() error {
	snap := stateSnapshot{
		Chats:         make([]chatSnapshot, 0, len(s.chats)),
		CurrentChatID: s.currentID,
	}
	for _, chat := range s.chats {
		snap.Chats = append(snap.Chats, snapshotChat(chat))
	}
	// Oldest first for a stable on-disk layout
	sort.Slice(snap.Chats, func(i, j int) bool {
		if snap.Chats[i].CreatedAt != snap.Chats[j].CreatedAt {
			return snap.Chats[i].CreatedAt < snap.Chats[j].CreatedAt
		}
		return snap.Chats[i].ID < snap.Chats[j].ID
	})

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal chat state: %w", err)
	}
	return s.backing.Save(stateKey, data)
}

func snapshotChat(chat *model.Chat) chatSnapshot {
	return chatSnapshot{
		ID:         chat.ID,
		Title:      chat.Title(),
		CreatedAt:  chat.CreatedAt,
		TokenUsage: chat.Usage,
		Messages:   chat.Messages,
	}
}

func summarize(chat *model.Chat) ChatSummary {
	return ChatSummary{
		ID:           chat.ID,
		Title:        chat.Title(),
		CreatedAt:    chat.CreatedAt,
		MessageCount: len(chat.Messages),
		Usage:        chat.Usage,
	}
}

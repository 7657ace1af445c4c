package model

import (
	"encoding/json"
	"strings"
)

// Role of a conversation message. Tool results travel as user messages, so
// only two roles exist.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one append-only entry in a conversation. Content is either plain
// text (Text set, Blocks nil) or a list of content blocks; the two forms
// round-trip through the persisted `string | ContentBlock[]` JSON shape.
type Message struct {
	Role   Role
	Text   string
	Blocks []ContentBlock
}

func NewUserTextMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func NewAssistantMessage(blocks []ContentBlock) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

func NewUserBlockMessage(blocks []ContentBlock) Message {
	return Message{Role: RoleUser, Blocks: blocks}
}

// IsPlainText reports whether the message carries a bare text payload.
func (m Message) IsPlainText() bool {
	return len(m.Blocks) == 0
}

type messageJSON struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content json.RawMessage
	var err error
	if m.IsPlainText() {
		content, err = json.Marshal(m.Text)
	} else {
		content, err = json.Marshal(m.Blocks)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{Role: m.Role, Content: content})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Text = ""
	m.Blocks = nil

	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		m.Text = text
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw.Content, &blocks); err == nil {
		m.Blocks = blocks
		return nil
	}

	// Legacy shape we no longer understand; keep it visible rather than drop it.
	m.Text = string(raw.Content)
	return nil
}

// TokenUsage holds cumulative per-conversation counters. Counters only ever
// grow; Add folds in one completed turn's backend-reported usage.
type TokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

func (u *TokenUsage) Add(turn TokenUsage) {
	u.InputTokens += turn.InputTokens
	u.OutputTokens += turn.OutputTokens
	u.CacheCreationInputTokens += turn.CacheCreationInputTokens
	u.CacheReadInputTokens += turn.CacheReadInputTokens
}

// Chat is one named conversation. CreatedAt is epoch milliseconds; the id
// embeds the creation time via its ULID component.
type Chat struct {
	ID        string
	CreatedAt int64
	Messages  []Message
	Usage     TokenUsage
}

const maxTitleLen = 30

// Title derives the display title from the first user message. It is never
// stored independently; callers recompute it on read.
func (c *Chat) Title() string {
	for _, msg := range c.Messages {
		if msg.Role != RoleUser {
			continue
		}
		text := msg.Text
		if text == "" {
			continue
		}
		return DeriveTitle(text)
	}
	return "New chat"
}

// DeriveTitle truncates and flattens a first-message text for display.
func DeriveTitle(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return "New chat"
	}
	runes := []rune(text)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "..."
	}
	return text
}

// ToolSchema is a provider-agnostic JSON-schema-like description of a tool's
// input object.
type ToolSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
	Defs       map[string]any `json:"$defs,omitempty"`
}

// ToolDescriptor describes one tool, namespaced by its owning provider.
type ToolDescriptor struct {
	QualifiedName string     `json:"qualifiedName"`
	Description   string     `json:"description"`
	InputSchema   ToolSchema `json:"inputSchema"`
}

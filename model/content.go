package model

import (
	"encoding/json"
	"fmt"
)

// BlockKind discriminates the ContentBlock union.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockToolUse  BlockKind = "tool_use"
	BlockToolRes  BlockKind = "tool_result"
	BlockImage    BlockKind = "image"
)

// ContentBlock is a closed sum type discriminated by Kind. Only the fields
// belonging to the active variant are populated; use the constructors below
// rather than building literals by hand.
//
// Variants:
//   - text: Text
//   - thinking: Text, Signature; or Redacted+Data for an opaque payload that
//     must be replayed to the backend verbatim
//   - tool_use: ID, Name, Input
//   - tool_result: ToolUseID, Content (text/image blocks only), IsError
//   - image: Data (base64), MimeType
type ContentBlock struct {
	Kind BlockKind `json:"kind"`

	Text      string         `json:"text,omitempty"`
	Signature string         `json:"signature,omitempty"`
	Redacted  bool           `json:"redacted,omitempty"`
	Data      string         `json:"data,omitempty"`
	MimeType  string         `json:"mime_type,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

func NewThinkingBlock(text, signature string) ContentBlock {
	return ContentBlock{Kind: BlockThinking, Text: text, Signature: signature}
}

// NewRedactedThinkingBlock carries an opaque reasoning payload. Data is never
// interpreted locally; it only exists to be replayed to the backend.
func NewRedactedThinkingBlock(data string) ContentBlock {
	return ContentBlock{Kind: BlockThinking, Redacted: true, Data: data}
}

func NewToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ID: id, Name: name, Input: input}
}

func NewToolResultBlock(toolUseID string, content []ContentBlock, isError bool) ContentBlock {
	return ContentBlock{Kind: BlockToolRes, ToolUseID: toolUseID, Content: content, IsError: isError}
}

func NewImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Kind: BlockImage, Data: data, MimeType: mimeType}
}

// UnmarshalJSON coerces unknown or legacy block shapes to a Text block instead
// of failing: persisted snapshots outlive schema revisions.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type rawBlock ContentBlock
	var raw rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object we recognize at all; keep the raw JSON as text.
		*b = ContentBlock{Kind: BlockText, Text: string(data)}
		return nil
	}

	switch raw.Kind {
	case BlockText, BlockThinking, BlockToolUse, BlockToolRes, BlockImage:
		*b = ContentBlock(raw)
	default:
		*b = ContentBlock{Kind: BlockText, Text: raw.Text}
	}
	return nil
}

// Validate checks per-variant field consistency.
func (b ContentBlock) Validate() error {
	switch b.Kind {
	case BlockText:
		return nil
	case BlockThinking:
		if b.Redacted && b.Data == "" {
			return fmt.Errorf("redacted thinking block missing payload")
		}
		return nil
	case BlockToolUse:
		if b.ID == "" || b.Name == "" {
			return fmt.Errorf("tool_use block missing id or name")
		}
		return nil
	case BlockToolRes:
		if b.ToolUseID == "" {
			return fmt.Errorf("tool_result block missing tool_use_id")
		}
		for _, c := range b.Content {
			if c.Kind != BlockText && c.Kind != BlockImage {
				return fmt.Errorf("tool_result content must be text or image, got %q", c.Kind)
			}
		}
		return nil
	case BlockImage:
		if b.Data == "" {
			return fmt.Errorf("image block missing data")
		}
		return nil
	default:
		return fmt.Errorf("unknown block kind %q", b.Kind)
	}
}

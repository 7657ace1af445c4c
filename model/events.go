package model

// Low-level backend events, as decoded from the model provider's wire stream.
// Each event is already attributed to a logical content-block position.

type BackendEventType string

const (
	EventBlockStart   BackendEventType = "block-start"
	EventDelta        BackendEventType = "delta"
	EventMessageDelta BackendEventType = "message-delta"
	EventMessageStop  BackendEventType = "message-stop"
)

// StopReason reported by the backend at the end of a turn.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// BlockStart announces a new content block in the stream. For tool_use blocks
// ID and Name are set; for redacted thinking Data carries the opaque payload.
type BlockStart struct {
	Kind BlockKind
	ID   string
	Name string
	Data string
}

// Delta is one incremental fragment. Exactly one field is set.
type Delta struct {
	Text        string
	Thinking    string
	Signature   string
	PartialJSON string
}

// BackendEvent is one element of the ordered event sequence a Backend emits
// for a single turn.
type BackendEvent struct {
	Type       BackendEventType
	Index      int
	Start      *BlockStart
	Delta      *Delta
	StopReason StopReason
	Usage      *TokenUsage
}

// Display events: the caller-facing stream. One lazy, finite sequence per
// SendMessage call; callers render incrementally.

type StreamEventType string

const (
	StreamText          StreamEventType = "text"
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamToolUse       StreamEventType = "tool_use"
	StreamToolResult    StreamEventType = "tool_result"
	StreamError         StreamEventType = "error"
)

// StreamEvent is one display-ready event emitted by the conversation engine.
type StreamEvent struct {
	Type             StreamEventType
	Text             string
	Thinking         string
	ThinkingComplete bool
	Name             string
	Input            map[string]any
	Content          []ContentBlock
	IsError          bool
}

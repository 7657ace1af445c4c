package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcpchat/config"
	"mcpchat/mcp"
	"mcpchat/model"
	"mcpchat/storage"
)

var (
	// ErrNoTools is returned by InitializeTools when no connected
	// server exposes any tool.
	ErrNoTools = errors.New("no tools available")

	// ErrTurnInFlight is returned by SendMessage while a previous
	// turn on the same chat is still streaming.
	ErrTurnInFlight = errors.New("a turn is already in flight for this chat")
)

// ToolRegistry is the tool surface the assistant needs. *mcp.Registry
// satisfies it; tests substitute fakes.
type ToolRegistry interface {
	Descriptors() []model.ToolDescriptor
	HasTools() bool
	CallTool(ctx context.Context, qualifiedName string, args map[string]any) ([]model.ContentBlock, bool, error)
}

// Options configures the per-turn request parameters.
type Options struct {
	Model          string
	MaxTokens      int64
	SystemPrompt   string
	ThinkingBudget int64
	ToolTimeout    time.Duration
}

const defaultToolTimeout = 120 * time.Second

// streamBuffer bounds the display-event channel so a slow reader
// applies backpressure instead of growing memory.
const streamBuffer = 64

// Assistant drives the conversation loop: it streams one model turn,
// persists the assistant message, executes any requested tools, and
// keeps looping until the model stops asking for tools.
type Assistant struct {
	backend  model.Backend
	registry ToolRegistry
	store    *storage.Store
	opts     Options

	mu       sync.Mutex
	tools    []model.ToolDescriptor
	inflight map[string]bool
}

func New(backend model.Backend, registry ToolRegistry, store *storage.Store, opts Options) *Assistant {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaultToolTimeout
	}
	return &Assistant{
		backend:  backend,
		registry: registry,
		store:    store,
		opts:     opts,
		inflight: make(map[string]bool),
	}
}

// InitializeTools snapshots the registry's tool list for the session.
// A registry with no tools is a startup failure, not a silent
// degradation.
func (a *Assistant) InitializeTools(ctx context.Context) error {
	descriptors := a.registry.Descriptors()
	if len(descriptors) == 0 {
		return ErrNoTools
	}

	a.mu.Lock()
	a.tools = descriptors
	a.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Assistant] Initialized with %d tools", len(descriptors))
	}
	return nil
}

// SendMessage appends the user's message and runs the turn loop in the
// background. Empty text resumes a conversation whose last entry is
// already a user-role message (a pending tool result) without appending
// anything; contextLines are ignored in that case. Non-empty contextLines
// describe the caller's ambient state (active file, selection) and are
// appended as suffix lines to the stored user message. The returned
// channel carries display events for this call only and is closed when
// the turn loop finishes.
func (a *Assistant) SendMessage(ctx context.Context, chatID, text string, contextLines []string) (<-chan model.StreamEvent, error) {
	a.mu.Lock()
	if a.inflight[chatID] {
		a.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	a.inflight[chatID] = true
	tools := a.tools
	a.mu.Unlock()

	if text != "" {
		if len(contextLines) > 0 {
			text = text + "\n\n" + strings.Join(contextLines, "\n")
		}
		if err := a.store.AppendMessage(chatID, model.NewUserTextMessage(text)); err != nil {
			a.clearInflight(chatID)
			return nil, err
		}
	}

	events := make(chan model.StreamEvent, streamBuffer)

	go func() {
		defer close(events)
		defer a.clearInflight(chatID)
		a.runTurnLoop(ctx, chatID, tools, events)
	}()

	return events, nil
}

func (a *Assistant) clearInflight(chatID string) {
	a.mu.Lock()
	delete(a.inflight, chatID)
	a.mu.Unlock()
}

// runTurnLoop streams model turns until the model stops requesting
// tools or the turn fails. Each iteration sends the full history.
func (a *Assistant) runTurnLoop(ctx context.Context, chatID string, tools []model.ToolDescriptor, events chan<- model.StreamEvent) {
	turnID := uuid.New().String()
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Assistant] Turn %s: starting for chat %s", turnID, chatID)
	}

	for {
		messages, err := a.store.Messages(chatID)
		if err != nil {
			a.emitError(events, err)
			return
		}

		dec := newDecoder(func(ev model.StreamEvent) {
			events <- ev
		})

		req := model.BackendRequest{
			Model:          a.opts.Model,
			MaxTokens:      a.opts.MaxTokens,
			System:         a.opts.SystemPrompt,
			Messages:       messages,
			Tools:          tools,
			ThinkingBudget: a.opts.ThinkingBudget,
		}

		if err := a.backend.Stream(ctx, req, dec.feed); err != nil {
			a.emitError(events, err)
			return
		}

		blocks, err := dec.assistantBlocks()
		if err != nil {
			a.emitError(events, err)
			return
		}

		if err := a.store.AppendMessage(chatID, model.NewAssistantMessage(blocks)); err != nil {
			a.emitError(events, err)
			return
		}
		if err := a.store.AddUsage(chatID, dec.usage); err != nil {
			a.emitError(events, err)
			return
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Assistant] Turn %s: stop_reason=%s in=%d out=%d",
				turnID, dec.stopReason, dec.usage.InputTokens, dec.usage.OutputTokens)
		}

		if dec.stopReason != model.StopToolUse {
			return
		}

		results, failed, err := a.executeTools(ctx, turnID, blocks, events)
		if err != nil {
			a.emitError(events, err)
			return
		}
		if len(results) > 0 {
			if err := a.store.AppendMessage(chatID, model.NewUserBlockMessage(results)); err != nil {
				a.emitError(events, err)
				return
			}
		}
		// A tool that failed to execute ends the loop; its error
		// result is already persisted for the next user turn.
		if failed {
			return
		}
	}
}

// executeTools runs every tool_use block of the assistant message, in
// order, and returns the tool_result blocks for the follow-up user
// message. The bool reports whether any tool failed to execute.
func (a *Assistant) executeTools(ctx context.Context, turnID string, blocks []model.ContentBlock, events chan<- model.StreamEvent) ([]model.ContentBlock, bool, error) {
	var results []model.ContentBlock
	failed := false

	for _, block := range blocks {
		if block.Kind != model.BlockToolUse {
			continue
		}

		events <- model.StreamEvent{
			Type:  model.StreamToolUse,
			Name:  block.Name,
			Input: block.Input,
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Assistant] Turn %s: calling tool %s", turnID, block.Name)
		}

		toolCtx, cancel := context.WithTimeout(ctx, a.opts.ToolTimeout)
		content, isError, err := a.registry.CallTool(toolCtx, block.Name, block.Input)
		cancel()

		// An unroutable tool name is a turn-fatal protocol breach, not
		// a tool failure the model could react to.
		if errors.Is(err, mcp.ErrUnknownProvider) {
			return nil, false, err
		}

		if err != nil {
			// Surface the failure to the model as an error result
			// rather than losing the tool_use pairing.
			content = []model.ContentBlock{model.NewTextBlock(fmt.Sprintf("tool execution failed: %v", err))}
			isError = true
			failed = true
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Assistant] Turn %s: tool %s failed: %v", turnID, block.Name, err)
			}
		}

		events <- model.StreamEvent{
			Type:    model.StreamToolResult,
			Name:    block.Name,
			Content: content,
			IsError: isError,
		}

		results = append(results, model.NewToolResultBlock(block.ID, content, isError))
	}

	return results, failed, nil
}

func (a *Assistant) emitError(events chan<- model.StreamEvent, err error) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Assistant] Turn error: %v", err)
	}
	events <- model.StreamEvent{
		Type:    model.StreamError,
		Text:    err.Error(),
		IsError: true,
	}
}

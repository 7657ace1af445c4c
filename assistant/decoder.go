package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"mcpchat/model"
)

// blockState accumulates one content block across its start and delta
// events.
type blockState struct {
	kind        model.BlockKind
	id          string
	name        string
	text        strings.Builder
	thinking    strings.Builder
	signature   string
	redacted    string
	partialJSON strings.Builder
}

// decoder folds the backend's ordered event stream into display events
// and, at the end of the turn, the assistant message to persist.
//
// Reasoning deltas are surfaced as they arrive; a single boundary event
// with ThinkingComplete set marks the transition from reasoning to
// visible output, emitted before the first text delta or at stream end
// when the turn produced no text.
type decoder struct {
	emit func(model.StreamEvent)

	blocks      map[int]*blockState
	order       []int
	sawThinking bool
	boundary    bool
	stopReason  model.StopReason
	usage       model.TokenUsage
}

func newDecoder(emit func(model.StreamEvent)) *decoder {
	return &decoder{
		emit:   emit,
		blocks: make(map[int]*blockState),
	}
}

// feed consumes one backend event. It satisfies model.EmitFunc.
func (d *decoder) feed(event model.BackendEvent) error {
	switch event.Type {
	case model.EventBlockStart:
		if event.Start == nil {
			return nil
		}
		block := &blockState{
			kind: event.Start.Kind,
			id:   event.Start.ID,
			name: event.Start.Name,
		}
		if event.Start.Kind == model.BlockThinking {
			d.sawThinking = true
			block.redacted = event.Start.Data
		}
		if _, exists := d.blocks[event.Index]; !exists {
			d.order = append(d.order, event.Index)
		}
		d.blocks[event.Index] = block

	case model.EventDelta:
		if event.Delta == nil {
			return nil
		}
		block, ok := d.blocks[event.Index]
		if !ok {
			return fmt.Errorf("delta for unknown block index %d", event.Index)
		}
		switch {
		case event.Delta.Text != "":
			d.emitBoundary()
			block.text.WriteString(event.Delta.Text)
			d.emit(model.StreamEvent{Type: model.StreamText, Text: event.Delta.Text})
		case event.Delta.Thinking != "":
			block.thinking.WriteString(event.Delta.Thinking)
			d.emit(model.StreamEvent{Type: model.StreamThinkingDelta, Thinking: event.Delta.Thinking})
		case event.Delta.Signature != "":
			block.signature += event.Delta.Signature
		case event.Delta.PartialJSON != "":
			block.partialJSON.WriteString(event.Delta.PartialJSON)
		}

	case model.EventMessageDelta:
		if event.StopReason != "" {
			d.stopReason = event.StopReason
		}

	case model.EventMessageStop:
		if event.StopReason != "" {
			d.stopReason = event.StopReason
		}
		if event.Usage != nil {
			d.usage = *event.Usage
		}
		d.emitBoundary()
	}

	return nil
}

// emitBoundary marks the end of the reasoning phase, at most once and
// only when reasoning actually occurred.
func (d *decoder) emitBoundary() {
	if d.boundary || !d.sawThinking {
		return
	}
	d.boundary = true
	d.emit(model.StreamEvent{Type: model.StreamThinkingDelta, ThinkingComplete: true})
}

// assistantBlocks materializes the accumulated blocks, in stream
// order, as the assistant message content to persist. A tool_use block
// whose input never parsed is a turn-fatal error.
func (d *decoder) assistantBlocks() ([]model.ContentBlock, error) {
	var out []model.ContentBlock
	for _, idx := range d.order {
		block := d.blocks[idx]
		switch block.kind {
		case model.BlockThinking:
			if block.redacted != "" {
				out = append(out, model.NewRedactedThinkingBlock(block.redacted))
				continue
			}
			out = append(out, model.NewThinkingBlock(block.thinking.String(), block.signature))
		case model.BlockText:
			out = append(out, model.NewTextBlock(block.text.String()))
		case model.BlockToolUse:
			input, err := toolInput(block.partialJSON.String())
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", block.name, err)
			}
			out = append(out, model.NewToolUseBlock(block.id, block.name, input))
		}
	}
	return out, nil
}

// toolInput parses the concatenated JSON fragments of a tool_use
// block. An empty accumulation means a no-argument call.
func toolInput(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("invalid tool input JSON: %w", err)
	}
	return input, nil
}

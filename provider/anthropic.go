package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mcpchat/config"
	"mcpchat/model"
)

// AnthropicBackend implements model.Backend using Anthropic's official API.
// It uses the official Anthropic Go SDK for direct Claude API access.
type AnthropicBackend struct {
	client  *anthropic.Client
	baseURL string
}

// NewAnthropicBackend creates a new Anthropic backend instance.
// baseURL defaults to "https://api.anthropic.com"; the API key is required.
func NewAnthropicBackend(baseURL, apiKey string) (*AnthropicBackend, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicBackend{
		client:  &client,
		baseURL: baseURL,
	}, nil
}

// Stream implements model.Backend. It opens one streaming message request
// and emits one decoded event per wire event, ending with a message-stop
// event carrying the turn's token usage.
func (b *AnthropicBackend) Stream(ctx context.Context, req model.BackendRequest, emit model.EmitFunc) error {
	params := buildParams(req)

	stream := b.client.Messages.NewStreaming(ctx, params)

	// Accumulate message
	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()

		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			start := convertBlockStart(eventVariant)
			if start == nil {
				continue
			}
			err := emit(model.BackendEvent{
				Type:  model.EventBlockStart,
				Index: int(eventVariant.Index),
				Start: start,
			})
			if err != nil {
				return err
			}

		case anthropic.ContentBlockDeltaEvent:
			delta := convertDelta(eventVariant)
			if delta == nil {
				continue
			}
			err := emit(model.BackendEvent{
				Type:  model.EventDelta,
				Index: int(eventVariant.Index),
				Delta: delta,
			})
			if err != nil {
				return err
			}

		case anthropic.MessageDeltaEvent:
			err := emit(model.BackendEvent{
				Type:       model.EventMessageDelta,
				StopReason: model.StopReason(eventVariant.Delta.StopReason),
			})
			if err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	usage := model.TokenUsage{
		InputTokens:              msg.Usage.InputTokens,
		OutputTokens:             msg.Usage.OutputTokens,
		CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
	}

	return emit(model.BackendEvent{
		Type:       model.EventMessageStop,
		StopReason: model.StopReason(msg.StopReason),
		Usage:      &usage,
	})
}

// buildParams assembles the request. The last tool and, when plain text,
// the last message's final block are marked cache-eligible so repeated
// turns reuse the prompt prefix.
func buildParams(req model.BackendRequest) anthropic.MessageNewParams {
	messages := convertMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	if len(req.Tools) > 0 {
		tools := convertTools(req.Tools)
		last := tools[len(tools)-1]
		if last.OfTool != nil {
			last.OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.Tools = tools
	}

	if len(messages) > 0 {
		lastMsg := &params.Messages[len(messages)-1]
		if len(lastMsg.Content) > 0 {
			lastBlock := &lastMsg.Content[len(lastMsg.Content)-1]
			if lastBlock.OfText != nil {
				lastBlock.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
			}
		}
	}

	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(req.ThinkingBudget)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Anthropic] Request: model=%s messages=%d tools=%d thinking_budget=%d",
			req.Model, len(messages), len(req.Tools), req.ThinkingBudget)
	}

	return params
}

func convertBlockStart(event anthropic.ContentBlockStartEvent) *model.BlockStart {
	switch block := event.ContentBlock.AsAny().(type) {
	case anthropic.TextBlock:
		return &model.BlockStart{Kind: model.BlockText}
	case anthropic.ThinkingBlock:
		return &model.BlockStart{Kind: model.BlockThinking}
	case anthropic.RedactedThinkingBlock:
		return &model.BlockStart{Kind: model.BlockThinking, Data: block.Data}
	case anthropic.ToolUseBlock:
		return &model.BlockStart{Kind: model.BlockToolUse, ID: block.ID, Name: block.Name}
	default:
		return nil
	}
}

func convertDelta(event anthropic.ContentBlockDeltaEvent) *model.Delta {
	switch deltaVariant := event.Delta.AsAny().(type) {
	case anthropic.TextDelta:
		return &model.Delta{Text: deltaVariant.Text}
	case anthropic.ThinkingDelta:
		return &model.Delta{Thinking: deltaVariant.Thinking}
	case anthropic.SignatureDelta:
		return &model.Delta{Signature: deltaVariant.Signature}
	case anthropic.InputJSONDelta:
		return &model.Delta{PartialJSON: deltaVariant.PartialJSON}
	default:
		return nil
	}
}

package provider

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"mcpchat/model"
)

// convertMessages converts conversation messages to Anthropic format.
func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		out = append(out, convertMessage(msg))
	}
	return out
}

func convertMessage(msg model.Message) anthropic.MessageParam {
	role := anthropic.MessageParamRoleUser
	if msg.Role == model.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}

	if msg.IsPlainText() {
		return anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Text)},
		}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		blocks = append(blocks, convertBlock(b))
	}
	return anthropic.MessageParam{Role: role, Content: blocks}
}

func convertBlock(b model.ContentBlock) anthropic.ContentBlockParamUnion {
	switch b.Kind {
	case model.BlockThinking:
		if b.Redacted {
			// Opaque payload; replayed verbatim so the backend can
			// continue its reasoning across turns.
			return anthropic.ContentBlockParamUnion{
				OfRedactedThinking: &anthropic.RedactedThinkingBlockParam{
					Data: b.Data,
				},
			}
		}
		return anthropic.ContentBlockParamUnion{
			OfThinking: &anthropic.ThinkingBlockParam{
				Thinking:  b.Text,
				Signature: b.Signature,
			},
		}

	case model.BlockToolUse:
		var input any = b.Input
		if b.Input == nil {
			input = map[string]any{}
		}
		return anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			},
		}

	case model.BlockToolRes:
		tr := anthropic.ToolResultBlockParam{
			ToolUseID: b.ToolUseID,
			Content:   convertToolResultContent(b.Content),
		}
		if b.IsError {
			tr.IsError = param.NewOpt(true)
		}
		return anthropic.ContentBlockParamUnion{OfToolResult: &tr}

	case model.BlockImage:
		return imageBlockParam(b)

	default:
		return anthropic.NewTextBlock(b.Text)
	}
}

func convertToolResultContent(blocks []model.ContentBlock) []anthropic.ToolResultBlockParamContentUnion {
	out := make([]anthropic.ToolResultBlockParamContentUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case model.BlockImage:
			out = append(out, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      b.Data,
							MediaType: anthropic.Base64ImageSourceMediaType(b.MimeType),
						},
					},
				},
			})
		default:
			out = append(out, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: b.Text},
			})
		}
	}
	return out
}

func imageBlockParam(b model.ContentBlock) anthropic.ContentBlockParamUnion {
	return anthropic.ContentBlockParamUnion{
		OfImage: &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{
				OfBase64: &anthropic.Base64ImageSourceParam{
					Data:      b.Data,
					MediaType: anthropic.Base64ImageSourceMediaType(b.MimeType),
				},
			},
		},
	}
}

// convertTools converts tool descriptors to Anthropic's tool format.
func convertTools(tools []model.ToolDescriptor) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			// Type defaults to "object" when omitted
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.QualifiedName)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return result
}

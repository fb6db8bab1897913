package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient completes chats through the Bedrock Converse API.
type BedrockClient struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockClient(api bedrockConverseAPI, modelID string) (*BedrockClient, error) {
	if api == nil {
		return nil, errors.New("assistant: bedrock converse client cannot be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("assistant: bedrock model id is required")
	}
	return &BedrockClient{api: api, modelID: modelID}, nil
}

func (c *BedrockClient) Name() string { return "bedrock" }

// Complete sends the chat with the tool catalogue over Converse and
// normalizes text and tool-use blocks back into a ChatResponse.
func (c *BedrockClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	modelID := c.modelID
	if req.Model != "" {
		modelID = req.Model
	}

	var systemBlocks []brtypes.SystemContentBlock
	if strings.TrimSpace(req.System) != "" {
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}

	messages, err := buildBedrockMessages(req.Messages)
	if err != nil {
		return ChatResponse{}, err
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(req.Temperature))
	}
	if inference.MaxTokens == nil && inference.Temperature == nil {
		inference = nil
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
	}
	if len(req.Tools) > 0 {
		toolConfig := &brtypes.ToolConfiguration{}
		for _, spec := range req.Tools {
			toolConfig.Tools = append(toolConfig.Tools, &brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(spec.Name),
					Description: aws.String(spec.Description),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(spec.Parameters),
					},
				},
			})
		}
		input.ToolConfig = toolConfig
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("assistant: bedrock converse failed: %w", err)
	}

	resp := ChatResponse{}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int64(int32OrZero(out.Usage.InputTokens)),
			OutputTokens: int64(int32OrZero(out.Usage.OutputTokens)),
			TotalTokens:  int64(int32OrZero(out.Usage.TotalTokens)),
		}
	}

	outMsg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ChatResponse{}, errors.New("assistant: bedrock returned no message output")
	}
	var textParts []string
	for _, block := range outMsg.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			textParts = append(textParts, b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			args, err := marshalToolInput(b.Value.Input)
			if err != nil {
				return ChatResponse{}, err
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}
	resp.Text = strings.TrimSpace(strings.Join(textParts, "\n"))
	return resp, nil
}

func buildBedrockMessages(in []Message) ([]brtypes.Message, error) {
	messages := make([]brtypes.Message, 0, len(in))
	for _, msg := range in {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: msg.Content},
				},
			})
		case RoleAssistant:
			var content []brtypes.ContentBlock
			if strings.TrimSpace(msg.Content) != "" {
				content = append(content, &brtypes.ContentBlockMemberText{Value: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return nil, fmt.Errorf("assistant: invalid tool arguments for %s: %w", tc.Name, err)
					}
				}
				content = append(content, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(tc.ID),
						Name:      aws.String(tc.Name),
						Input:     document.NewLazyDocument(args),
					},
				})
			}
			if len(content) == 0 {
				continue
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: content,
			})
		case RoleTool:
			// Converse carries tool results on a user-role message.
			messages = append(messages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberToolResult{
						Value: brtypes.ToolResultBlock{
							ToolUseId: aws.String(msg.ToolCallID),
							Content: []brtypes.ToolResultContentBlock{
								&brtypes.ToolResultContentBlockMemberText{Value: msg.Content},
							},
						},
					},
				},
			})
		default:
			return nil, fmt.Errorf("assistant: unsupported role %q", msg.Role)
		}
	}
	return messages, nil
}

func marshalToolInput(in document.Interface) (json.RawMessage, error) {
	if in == nil {
		return json.RawMessage(`{}`), nil
	}
	var v any
	if err := in.UnmarshalSmithyDocument(&v); err != nil {
		return nil, fmt.Errorf("assistant: failed to decode tool input: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to encode tool input: %w", err)
	}
	return raw, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

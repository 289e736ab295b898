// Package anthropic adapts Anthropic's Claude API to model.ChatModel so
// the supervisor's llm_based routing strategy and the reflection/
// plan-execute generator nodes can drive a real provider.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/graph/model"
)

const defaultModelName = "claude-sonnet-4-5-20250929"
const defaultMaxTokens = 4096

// ChatModel implements model.ChatModel against Claude's Messages API.
// Anthropic keeps system prompts out of the messages array, so Chat
// splits RoleSystem entries out before calling the wire client.
type ChatModel struct {
	modelName string
	client    wireClient
}

// wireClient isolates the actual HTTP call so tests can substitute a
// fake without reaching the network.
type wireClient interface {
	send(ctx context.Context, systemPrompt string, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel builds a ChatModel for the given API key and model name;
// an empty modelName defaults to the current Sonnet release.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModelName
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName},
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	systemPrompt, turns := splitSystemPrompt(messages)

	out, err := m.client.send(ctx, systemPrompt, turns, tools)
	if err != nil {
		return model.ChatOut{}, classifyError(err)
	}
	return out, nil
}

// splitSystemPrompt pulls RoleSystem messages out of the conversation
// and concatenates them into Anthropic's separate system parameter.
func splitSystemPrompt(messages []model.Message) (string, []model.Message) {
	var system string
	turns := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != model.RoleSystem {
			turns = append(turns, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, turns
}

// providerError carries Anthropic's own error category alongside the
// underlying SDK error so classifyError can route it into the engine's
// retryable/non-retryable taxonomy (spec.md 7).
type providerError struct {
	category string
	cause    error
}

func (e *providerError) Error() string { return fmt.Sprintf("anthropic: %s: %v", e.category, e.cause) }
func (e *providerError) Unwrap() error { return e.cause }

// classifyError maps an Anthropic failure onto spec.md 7's taxonomy:
// rate limits and overload are transient (retry middleware should act on
// them), everything else about the request itself is a validation
// failure middleware must not retry.
func classifyError(err error) error {
	var pe *providerError
	if !errors.As(err, &pe) {
		return &graph.TransientError{Message: "anthropic call failed", Cause: err}
	}
	switch pe.category {
	case "rate_limit_error", "overloaded_error", "api_error":
		return &graph.TransientError{Message: "anthropic " + pe.category, Cause: pe.cause}
	default:
		return &graph.ValidationError{Message: "anthropic " + pe.category, Field: "request", Cause: pe.cause}
	}
}

// sdkClient wraps the official Anthropic SDK.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) send(ctx context.Context, systemPrompt string, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, &providerError{category: "authentication_error", cause: errors.New("missing API key")}
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  toAnthropicMessages(messages),
		MaxTokens: defaultMaxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, &providerError{category: "api_error", cause: err}
	}
	return fromAnthropicResponse(resp), nil
}

func toAnthropicMessages(messages []model.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			out[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			out[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return out
}

func toAnthropicTools(tools []model.ToolSpec) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, required := schemaFields(t.Schema)
		out[i] = anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: properties, Required: required},
			},
		}
	}
	return out
}

// schemaFields pulls "properties" and "required" out of a ToolSpec's raw
// JSON-Schema-shaped map, tolerating both []string and []interface{} for
// required (the latter is what a decoded JSON document yields).
func schemaFields(schema map[string]any) (properties any, required []string) {
	if schema == nil {
		return nil, nil
	}
	properties = schema["properties"]
	switch req := schema["required"].(type) {
	case []string:
		required = req
	case []interface{}:
		required = make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return properties, required
}

func fromAnthropicResponse(resp *anthropicsdk.Message) model.ChatOut {
	var out model.ChatOut
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		case anthropicsdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: b.Name, Input: toolInput(b.Input)})
		}
	}
	return out
}

func toolInput(raw interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	if m, ok := raw.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"_raw": raw}
}

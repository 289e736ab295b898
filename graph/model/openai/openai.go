// Package openai adapts OpenAI's Chat Completions API to model.ChatModel.
// Retries belong to middleware.Retry (spec.md 6.1's L1/L2 split), not the
// provider adapter, so Chat classifies failures into the engine's own
// taxonomy and lets the caller's middleware stack decide whether to retry.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/graph/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultModelName = "gpt-4o"

// ChatModel implements model.ChatModel against OpenAI's Chat Completions
// API.
type ChatModel struct {
	modelName string
	client    wireClient
}

// wireClient isolates the network call so tests can substitute a fake.
type wireClient interface {
	complete(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel builds a ChatModel for the given API key and model name; an
// empty modelName defaults to gpt-4o.
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
	out, err := m.client.complete(ctx, messages, tools)
	if err != nil {
		return model.ChatOut{}, classifyError(err)
	}
	return out, nil
}

// providerError carries OpenAI's own error code alongside the underlying
// SDK error so classifyError can route it into the engine's
// retryable/non-retryable taxonomy (spec.md 7).
type providerError struct {
	code  string
	cause error
}

func (e *providerError) Error() string { return fmt.Sprintf("openai: %s: %v", e.code, e.cause) }
func (e *providerError) Unwrap() error { return e.cause }

// classifyError maps an OpenAI failure onto spec.md 7's taxonomy: rate
// limits and server-side errors are transient and safe for
// middleware.Retry to act on; everything about the request itself is a
// validation failure that must not be retried.
func classifyError(err error) error {
	var pe *providerError
	if !errors.As(err, &pe) {
		return &graph.TransientError{Message: "openai call failed", Cause: err}
	}
	switch pe.code {
	case "rate_limit_exceeded", "server_error", "service_unavailable":
		return &graph.TransientError{Message: "openai " + pe.code, Cause: pe.cause}
	default:
		return &graph.ValidationError{Message: "openai " + pe.code, Field: "request", Cause: pe.cause}
	}
}

// sdkClient wraps the official OpenAI SDK.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) complete(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, &providerError{code: "invalid_api_key", cause: errors.New("missing API key")}
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, &providerError{code: "server_error", cause: err}
	}
	return fromOpenAIResponse(resp), nil
}

func toOpenAIMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			result[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return result
}

func toOpenAITools(tools []model.ToolSpec) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		result[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return result
}

func fromOpenAIResponse(resp *openaisdk.ChatCompletion) model.ChatOut {
	out := model.ChatOut{}
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	if len(msg.ToolCalls) == 0 {
		return out
	}
	out.ToolCalls = make([]model.ToolCall, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		out.ToolCalls[i] = model.ToolCall{Name: tc.Function.Name, Input: parseToolInput(tc.Function.Arguments)}
	}
	return out
}

// parseToolInput decodes the JSON arguments string OpenAI returns for a
// function call. A malformed payload degrades to the raw string under
// "_raw" rather than failing the whole response.
func parseToolInput(jsonStr string) map[string]interface{} {
	if jsonStr == "" {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return map[string]interface{}{"_raw": jsonStr}
	}
	return result
}

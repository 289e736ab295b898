// Package google adapts Google's Gemini API to model.ChatModel. Safety
// filter blocks map to graph.PolicyError (spec.md 7's non-retryable
// "policy" category) since retrying an identical prompt never lifts a
// safety block; every other failure is classified like the other
// providers.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/graph/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModelName = "gemini-2.5-flash"

// ChatModel implements model.ChatModel against Google's Gemini API.
type ChatModel struct {
	modelName string
	client    wireClient
}

// wireClient isolates the network call so tests can substitute a fake.
type wireClient interface {
	generateContent(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel builds a ChatModel for the given API key and model name; an
// empty modelName defaults to gemini-2.5-flash.
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
	out, err := m.client.generateContent(ctx, messages, tools)
	if err != nil {
		return model.ChatOut{}, classifyError(err)
	}
	return out, nil
}

// SafetyFilterError reports that Gemini refused to answer because the
// prompt or the draft response tripped a safety category.
type SafetyFilterError struct {
	Reason   string
	Category string
}

func (e *SafetyFilterError) Error() string {
	return fmt.Sprintf("content blocked by safety filter: %s (%s)", e.Category, e.Reason)
}

// classifyError maps a Gemini failure onto spec.md 7's taxonomy. A safety
// block is a policy decision Gemini will repeat for the same input, so it
// becomes a graph.PolicyError; everything else follows the same
// transient/validation split the other provider adapters use.
func classifyError(err error) error {
	var safety *SafetyFilterError
	if errors.As(err, &safety) {
		return &graph.PolicyError{Reason: safety.Category, Message: safety.Error()}
	}
	var pe *providerError
	if !errors.As(err, &pe) {
		return &graph.TransientError{Message: "google call failed", Cause: err}
	}
	switch pe.code {
	case "server_error", "quota_exceeded", "unavailable":
		return &graph.TransientError{Message: "google " + pe.code, Cause: pe.cause}
	default:
		return &graph.ValidationError{Message: "google " + pe.code, Field: "request", Cause: pe.cause}
	}
}

// providerError carries Gemini's own error code alongside the underlying
// SDK error, mirroring the anthropic and openai adapters.
type providerError struct {
	code  string
	cause error
}

func (e *providerError) Error() string { return fmt.Sprintf("google: %s: %v", e.code, e.cause) }
func (e *providerError) Unwrap() error { return e.cause }

// sdkClient wraps the official Gemini SDK.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) generateContent(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, &providerError{code: "invalid_api_key", cause: errors.New("missing API key")}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, &providerError{code: "client_init_failed", cause: err}
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	if len(tools) > 0 {
		genModel.Tools = toGeminiTools(tools)
	}

	resp, err := genModel.GenerateContent(ctx, toGeminiParts(messages)...)
	if err != nil {
		return model.ChatOut{}, &providerError{code: "server_error", cause: err}
	}
	if blocked := blockReason(resp); blocked != "" {
		return model.ChatOut{}, &SafetyFilterError{Reason: "SAFETY", Category: blocked}
	}
	return fromGeminiResponse(resp), nil
}

func toGeminiParts(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func toGeminiTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func toGeminiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	result := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			propMap, ok := val.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema := &genai.Schema{}
			if typeStr, ok := propMap["type"].(string); ok {
				propSchema.Type = geminiType(typeStr)
			}
			if desc, ok := propMap["description"].(string); ok {
				propSchema.Description = desc
			}
			properties[key] = propSchema
		}
		result.Properties = properties
	}
	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []interface{}:
		result.Required = make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

func geminiType(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// blockReason reports the safety category a response was blocked under, or
// "" if nothing was blocked.
func blockReason(resp *genai.GenerateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != 0 {
		return resp.PromptFeedback.BlockReason.String()
	}
	for _, c := range resp.Candidates {
		if c.FinishReason == genai.FinishReasonSafety {
			return "SAFETY"
		}
	}
	return ""
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out
}

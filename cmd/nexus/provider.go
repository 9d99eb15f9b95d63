package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// anthropicProvider adapts the Anthropic SDK to agent.LLMProvider. It
// issues one non-streaming request per completion and replays the
// response content as chunks.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(apiKey, baseURL string) *anthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  defaultAnthropicModel,
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Models() []agent.Model {
	return []agent.Model{{ID: defaultAnthropicModel, Name: "Claude Sonnet 4", ContextSize: 200000}}
}

func (p *anthropicProvider) SupportsTools() bool { return true }

func (p *anthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *agent.CompletionChunk, 8)
	go func() {
		defer close(ch)
		resp, err := p.client.Messages.New(ctx, params)
		if err != nil {
			ch <- &agent.CompletionChunk{Error: fmt.Errorf("anthropic: %w", err)}
			return
		}
		for _, block := range resp.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				if b.Text != "" {
					ch <- &agent.CompletionChunk{Text: b.Text}
				}
			case anthropic.ToolUseBlock:
				ch <- &agent.CompletionChunk{ToolCall: &models.ToolCall{
					ID:    b.ID,
					Name:  b.Name,
					Input: json.RawMessage(b.Input),
				}}
			}
		}
		ch <- &agent.CompletionChunk{Done: true}
	}()
	return ch, nil
}

func (p *anthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// convertMessages maps internal messages onto Anthropic content blocks.
// Tool results ride on user messages, tool calls on assistant messages.
func convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID, toolResult.Content, toolResult.IsError))
		}
		for _, toolCall := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}

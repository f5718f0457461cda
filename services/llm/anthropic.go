package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tmc/langchaingo/llms"
)

const defaultMaxTokens = 1024

// AnthropicModel adapts the Anthropic Messages API to the llms.Model
// interface so the agents can run against either provider unchanged.
type AnthropicModel struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropicModel(apiKey string) (*AnthropicModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicModel{
		client:    &client,
		model:     anthropic.ModelClaude4Sonnet20250514,
		maxTokens: defaultMaxTokens,
	}, nil
}

func (m *AnthropicModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var system []anthropic.TextBlockParam
	var anthropicMessages []anthropic.MessageParam

	for _, msg := range messages {
		text := flattenParts(msg.Parts)
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			system = append(system, anthropic.TextBlockParam{Text: text})
		case llms.ChatMessageTypeAI:
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: m.maxTokens,
		Messages:  anthropicMessages,
		System:    system,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	response, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
	}

	content := ""
	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += block.Text
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    content,
				StopReason: string(response.StopReason),
			},
		},
	}, nil
}

// Call implements the legacy single-prompt entry point of llms.Model.
func (m *AnthropicModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in Anthropic response")
	}
	return response.Choices[0].Content, nil
}

func flattenParts(parts []llms.ContentPart) string {
	text := ""
	for _, part := range parts {
		if textPart, ok := part.(llms.TextContent); ok {
			text += textPart.Text
		}
	}
	return text
}

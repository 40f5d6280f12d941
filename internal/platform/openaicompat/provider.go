// Package openaicompat adapts any OpenAI-compatible chat completions API
// (OpenAI, DeepSeek, MiniMax and similar gateways) to llm.Provider.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/tiptoro/tiptoro-api/internal/llm"
)

// DefaultName is the provider name used when Config.Name is empty.
const DefaultName = "openai"

// Config configures a provider.
type Config struct {
	// Name is the provider name used in llm routing.
	Name    string
	APIKey  string
	BaseURL string
}

// Provider implements llm.Provider on the chat completions endpoint.
type Provider struct {
	name   string
	client *openai.Client
	logger *slog.Logger
}

// NewProvider creates a provider. SDK-level retries are disabled because
// the llm client retries on its own.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", llm.ErrInvalidConfig)
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Provider{
		name:   name,
		client: &client,
		logger: logger.With("component", "openai_provider", "provider", name),
	}, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.name }

// Complete sends req as one chat completion.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", llm.ErrInvalidRequest)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	p.logger.DebugContext(ctx, "sending chat completion",
		"model", req.Model,
		"message_count", len(params.Messages),
		"json_mode", req.JSONMode)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	return p.parseResponse(req.Model, resp)
}

func toMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURL(),
				}))
			}
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func (p *Provider) parseResponse(model string, resp *openai.ChatCompletion) (*llm.CompletionResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", llm.ErrInvalidResponse)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: completion filtered", llm.ErrContentBlocked)
	}
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("%w: empty completion", llm.ErrInvalidResponse)
	}

	out := &llm.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        model,
		Provider:     p.name,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if resp.Model != "" {
		out.Model = resp.Model
	}
	return out, nil
}

// classifyError marks client errors as permanent. Rate limiting and
// server errors stay transient.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode >= http.StatusBadRequest &&
		apiErr.StatusCode < http.StatusInternalServerError &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", llm.ErrInvalidRequest, err)
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

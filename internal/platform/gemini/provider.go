package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/tiptoro/tiptoro-api/internal/llm"
)

// ProviderName is the name used in llm routing configuration.
const ProviderName = "gemini"

// contentGenerator is the subset of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Provider implements llm.Provider on the Gemini API.
type Provider struct {
	models contentGenerator
	logger *slog.Logger
}

// NewProvider creates a Gemini provider authenticated with apiKey.
func NewProvider(ctx context.Context, apiKey string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", llm.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %v", llm.ErrInvalidConfig, err)
	}
	return newProvider(client.Models, logger), nil
}

func newProvider(models contentGenerator, logger *slog.Logger) *Provider {
	return &Provider{
		models: models,
		logger: logger.With("component", "gemini_provider"),
	}
}

// Name returns ProviderName.
func (p *Provider) Name() string { return ProviderName }

// Complete sends req as a single GenerateContent call.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, system := toContents(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: no user or assistant messages", llm.ErrInvalidRequest)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if system != nil {
		cfg.SystemInstruction = system
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	p.logger.DebugContext(ctx, "sending gemini request",
		"model", req.Model,
		"content_count", len(contents),
		"json_mode", req.JSONMode)

	resp, err := p.models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, classifyError(err)
	}
	return parseResponse(req.Model, resp)
}

// toContents converts messages to genai contents. System messages are
// merged into one system instruction.
func toContents(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}

		parts := make([]*genai.Part, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
		if m.Content != "" {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}

		role := string(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = string(genai.RoleModel)
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{
		Parts: []*genai.Part{genai.NewPartFromText(strings.Join(system, "\n\n"))},
	}
}

func parseResponse(model string, resp *genai.GenerateContentResponse) (*llm.CompletionResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", llm.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", llm.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", llm.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", llm.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", llm.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: response contains no text", llm.ErrInvalidResponse)
	}

	out := &llm.CompletionResponse{
		Content:  text.String(),
		Model:    model,
		Provider: ProviderName,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}

// classifyError marks client errors as permanent. Rate limiting and
// server errors stay transient.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) &&
		apiErr.Code >= http.StatusBadRequest &&
		apiErr.Code < http.StatusInternalServerError &&
		apiErr.Code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", llm.ErrInvalidRequest, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

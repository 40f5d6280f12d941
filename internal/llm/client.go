package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/tiptoro/tiptoro-api/internal/config"
)

// Route selects the provider and model for a role.
type Route struct {
	Provider string
	Model    string
}

// Defaults are the generation parameters used when a call does not
// override them.
type Defaults struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Default    Route
	Roles      map[string]Route
	Defaults   Defaults
	MaxRetries int
	RetryDelay time.Duration

	// RequestsPerSecond caps calls to each provider, retries included.
	// Zero means unlimited.
	RequestsPerSecond float64
}

// ConfigFrom converts application configuration into a ClientConfig.
func ConfigFrom(cfg config.LLMConfig) ClientConfig {
	roles := make(map[string]Route, len(cfg.Roles))
	for name, r := range cfg.Roles {
		roles[name] = Route{Provider: r.Provider, Model: r.Model}
	}
	return ClientConfig{
		Default: Route{Provider: cfg.Provider, Model: cfg.Model},
		Roles:   roles,
		Defaults: Defaults{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
		},
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        time.Duration(cfg.RetryDelaySeconds) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// CallOption overrides a generation parameter for one call.
type CallOption func(*CompletionRequest)

// WithJSONMode asks the model for a bare JSON object.
func WithJSONMode() CallOption {
	return func(r *CompletionRequest) { r.JSONMode = true }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(r *CompletionRequest) { r.Temperature = t }
}

// WithMaxTokens overrides the output token limit.
func WithMaxTokens(n int) CallOption {
	return func(r *CompletionRequest) { r.MaxTokens = n }
}

// WithTopP overrides nucleus sampling.
func WithTopP(p float64) CallOption {
	return func(r *CompletionRequest) { r.TopP = p }
}

// Client routes role-based calls to providers.
type Client struct {
	providers map[string]Provider
	limiters  map[string]*rate.Limiter
	cfg       ClientConfig
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client over the given providers. The default route's
// provider must be among them.
func NewClient(cfg ClientConfig, logger *slog.Logger, providers ...Provider) (*Client, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if _, ok := byName[cfg.Default.Provider]; !ok {
		return nil, fmt.Errorf("%w: default provider %q", ErrProviderNotFound, cfg.Default.Provider)
	}
	if cfg.Default.Model == "" {
		return nil, fmt.Errorf("%w: default model cannot be empty", ErrInvalidConfig)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	}

	limiters := make(map[string]*rate.Limiter, len(byName))
	if cfg.RequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.RequestsPerSecond))
		for name := range byName {
			limiters[name] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		}
	}

	return &Client{
		providers: byName,
		limiters:  limiters,
		cfg:       cfg,
		logger:    logger.With("component", "llm_client"),
		sleep:     sleepContext,
	}, nil
}

// Route resolves the provider and model used for role. Unknown roles and
// missing fields fall back to the default route.
func (c *Client) Route(role string) Route {
	route := c.cfg.Default
	if r, ok := c.cfg.Roles[role]; ok {
		if r.Provider != "" {
			route.Provider = r.Provider
			// A role on another provider must not inherit the default model.
			if r.Provider != c.cfg.Default.Provider && r.Model == "" {
				route.Model = ""
			}
		}
		if r.Model != "" {
			route.Model = r.Model
		}
	}
	return route
}

// Call sends messages to the model routed for role.
func (c *Client) Call(ctx context.Context, role string, messages []Message, opts ...CallOption) (*CompletionResponse, error) {
	route := c.Route(role)
	provider, ok := c.providers[route.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q for role %q", ErrProviderNotFound, route.Provider, role)
	}
	if route.Model == "" {
		return nil, fmt.Errorf("%w: no model configured for role %q", ErrInvalidConfig, role)
	}

	req := &CompletionRequest{
		Messages:    messages,
		Model:       route.Model,
		Temperature: c.cfg.Defaults.Temperature,
		MaxTokens:   c.cfg.Defaults.MaxTokens,
		TopP:        c.cfg.Defaults.TopP,
	}
	for _, opt := range opts {
		opt(req)
	}

	log := c.logger.With("role", role, "provider", route.Provider, "model", route.Model)
	return c.completeWithRetry(ctx, log, provider, req)
}

// wait blocks until the provider's limiter admits one more call.
func (c *Client) wait(ctx context.Context, provider string) error {
	lim, ok := c.limiters[provider]
	if !ok {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limited: %v", ErrTransientFailure, err)
	}
	return nil
}

func (c *Client) completeWithRetry(ctx context.Context, log *slog.Logger, p Provider, req *CompletionRequest) (*CompletionResponse, error) {
	maxRetries := c.cfg.MaxRetries

	for attempt := 0; ; attempt++ {
		if err := c.wait(ctx, p.Name()); err != nil {
			return nil, err
		}
		start := time.Now()
		resp, err := p.Complete(ctx, req)
		if err == nil {
			log.Info("llm call succeeded",
				"attempt", attempt+1,
				"duration_ms", time.Since(start).Milliseconds(),
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens)
			return resp, nil
		}

		log.Warn("llm call failed", "attempt", attempt+1, "error", err)

		if IsPermanent(err) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientFailure, ctxErr)
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v", ErrTransientFailure, maxRetries, err)
		}

		delay := c.backoff(attempt)
		log.Info("retrying llm call after delay", "attempt", attempt+1, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientFailure, err)
		}
	}
}

// backoff returns RetryDelay * 2^attempt scaled by a random factor in
// [0.5, 1.0).
func (c *Client) backoff(attempt int) time.Duration {
	base := float64(c.cfg.RetryDelay) * math.Pow(2, float64(attempt))
	return time.Duration(base * (0.5 + rand.Float64()*0.5))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package client routes chat requests to the provider that serves the
// requested model.
//
// Provider adapters are created lazily on first use, so only the providers a
// deployment actually calls need credentials:
//
//	c := client.New(client.Config{
//	    APIKeys: client.APIKeys{Anthropic: os.Getenv("ANTHROPIC_API_KEY")},
//	    Default: model.ClaudeSonnet45,
//	})
//	resp, err := c.Chat(ctx, []careflow.Message{{Role: careflow.RoleUser, Content: "Hello"}})
//
// A model whose provider has no key fails with *ErrMissingAPIKey before any
// network call. Retries are off unless Config.Retry enables them.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/internal/provider/anthropic"
	"github.com/spetersoncode/careflow/internal/provider/google"
	"github.com/spetersoncode/careflow/internal/provider/openai"
	"github.com/spetersoncode/careflow/internal/retry"
)

// APIKeys holds API keys for different providers.
// Only configure keys for providers you intend to use.
type APIKeys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// Has reports whether a key is configured for p.
func (k APIKeys) Has(p careflow.Provider) bool {
	switch p {
	case careflow.ProviderAnthropic:
		return k.Anthropic != ""
	case careflow.ProviderOpenAI:
		return k.OpenAI != ""
	case careflow.ProviderGoogle:
		return k.Google != ""
	default:
		return false
	}
}

// Config holds configuration for creating a unified client.
type Config struct {
	APIKeys APIKeys

	// Default is the chat model used when a request names none.
	Default careflow.Model

	// Retry configures re-attempts of transient failures. Nil means a
	// single attempt.
	Retry *retry.Config

	// Logger receives request and retry logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// ErrMissingAPIKey is returned when a model is used but no API key
// is configured for that model's provider.
type ErrMissingAPIKey struct {
	Provider string
	Model    string
}

func (e *ErrMissingAPIKey) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("no API key configured for %s (required by model %q)", e.Provider, e.Model)
	}
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// ErrNoModel is returned when no model is specified and no default is configured.
type ErrNoModel struct {
	Operation string
}

func (e *ErrNoModel) Error() string {
	return fmt.Sprintf("no model specified for %s: set client.Config Default or use careflow.WithModel()", e.Operation)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDefaultTemperature sets the default temperature for chat requests.
// Per-request options override this default.
func WithDefaultTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.defaultChatOpts = append(c.defaultChatOpts, careflow.WithTemperature(t))
	}
}

// WithDefaultMaxTokens sets the default max tokens for chat requests.
// Per-request options override this default.
func WithDefaultMaxTokens(n int) ClientOption {
	return func(c *Client) {
		c.defaultChatOpts = append(c.defaultChatOpts, careflow.WithMaxTokens(n))
	}
}

// WithProvider installs a ready-made adapter for p, bypassing lazy
// construction and the API key check.
func WithProvider(p careflow.Provider, cp careflow.ChatProvider) ClientOption {
	return func(c *Client) {
		c.providers[p] = cp
	}
}

// Client is a unified chat client over all supported providers.
// Provider clients are lazily initialized when first needed.
type Client struct {
	apiKeys         APIKeys
	defaultModel    careflow.Model
	retryConfig     retry.Config
	logger          *slog.Logger
	defaultChatOpts []careflow.Option

	mu            sync.RWMutex
	providers     map[careflow.Provider]careflow.ChatProvider
	googleInitErr error
}

// New creates a unified client with the given configuration.
func New(cfg Config, opts ...ClientOption) *Client {
	retryConfig := retry.Disabled()
	if cfg.Retry != nil {
		retryConfig = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		apiKeys:      cfg.APIKeys,
		defaultModel: cfg.Default,
		retryConfig:  retryConfig,
		logger:       logger,
		providers:    make(map[careflow.Provider]careflow.ChatProvider),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultModel returns the configured default chat model, or nil.
func (c *Client) DefaultModel() careflow.Model {
	return c.defaultModel
}

// Available reports whether a chat request for the default model could be
// dispatched without a missing-credential error.
func (c *Client) Available() bool {
	if c.defaultModel == nil {
		return false
	}
	p := c.defaultModel.Provider()
	c.mu.RLock()
	_, ok := c.providers[p]
	c.mu.RUnlock()
	return ok || c.apiKeys.Has(p)
}

// provider returns the adapter for p, initializing it if needed.
func (c *Client) provider(ctx context.Context, m careflow.Model) (careflow.ChatProvider, error) {
	p := m.Provider()

	c.mu.RLock()
	if cp, ok := c.providers[p]; ok {
		defer c.mu.RUnlock()
		return cp, nil
	}
	if p == careflow.ProviderGoogle && c.googleInitErr != nil {
		defer c.mu.RUnlock()
		return nil, c.googleInitErr
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if cp, ok := c.providers[p]; ok {
		return cp, nil
	}
	if !c.apiKeys.Has(p) {
		return nil, &ErrMissingAPIKey{Provider: p.String(), Model: m.String()}
	}

	var cp careflow.ChatProvider
	switch p {
	case careflow.ProviderAnthropic:
		cp = anthropic.New(c.apiKeys.Anthropic)
	case careflow.ProviderOpenAI:
		cp = openai.New(c.apiKeys.OpenAI)
	case careflow.ProviderGoogle:
		if c.googleInitErr != nil {
			return nil, c.googleInitErr
		}
		g, err := google.New(ctx, c.apiKeys.Google)
		if err != nil {
			c.googleInitErr = fmt.Errorf("failed to initialize Google client: %w", err)
			return nil, c.googleInitErr
		}
		cp = g
	default:
		return nil, fmt.Errorf("unsupported provider: %s", p)
	}
	c.providers[p] = cp
	return cp, nil
}

// prepare resolves the model and adapter for a request. The returned
// options always carry the resolved model.
func (c *Client) prepare(ctx context.Context, operation string, opts []careflow.Option) (careflow.ChatProvider, careflow.Model, []careflow.Option, error) {
	// Prepend default options so per-request options override them
	opts = append(append([]careflow.Option(nil), c.defaultChatOpts...), opts...)
	options := careflow.ApplyOptions(opts...)

	m := options.Model
	if m == nil {
		m = c.defaultModel
	}
	if m == nil {
		return nil, nil, nil, &ErrNoModel{Operation: operation}
	}

	cp, err := c.provider(ctx, m)
	if err != nil {
		return nil, nil, nil, err
	}
	if options.Model == nil {
		opts = append([]careflow.Option{careflow.WithModel(m)}, opts...)
	}
	return cp, m, opts, nil
}

// costed is implemented by catalogued models that carry pricing.
type costed interface {
	Cost(careflow.Usage) float64
}

func (c *Client) retryFor(log *slog.Logger) retry.Config {
	cfg := c.retryConfig
	user := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("retrying provider call", "attempt", attempt, "delay", delay, "error", err)
		if user != nil {
			user(attempt, delay, err)
		}
	}
	return cfg
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (*careflow.Response, error) {
	cp, m, opts, err := c.prepare(ctx, "chat", opts)
	if err != nil {
		return nil, err
	}
	log := c.logger.With("operation", "chat", "provider", m.Provider(), "model", m.String())

	start := time.Now()
	resp, err := retry.Do(ctx, c.retryFor(log), func() (*careflow.Response, error) {
		return cp.Chat(ctx, messages, opts...)
	})
	if err != nil {
		log.Error("request failed", "duration", time.Since(start), "error", err)
		return nil, err
	}
	attrs := []any{
		"duration", time.Since(start),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	}
	if priced, ok := m.(costed); ok {
		attrs = append(attrs, "cost_usd", priced.Cost(resp.Usage))
	}
	log.Debug("request complete", attrs...)
	return resp, nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
// Only establishing the stream is retried.
func (c *Client) ChatStream(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (<-chan careflow.StreamEvent, error) {
	cp, m, opts, err := c.prepare(ctx, "chat_stream", opts)
	if err != nil {
		return nil, err
	}
	log := c.logger.With("operation", "chat_stream", "provider", m.Provider(), "model", m.String())

	start := time.Now()
	ch, err := retry.DoStream(ctx, c.retryFor(log), func() (<-chan careflow.StreamEvent, error) {
		return cp.ChatStream(ctx, messages, opts...)
	})
	if err != nil {
		log.Error("stream failed to open", "duration", time.Since(start), "error", err)
		return nil, err
	}
	log.Debug("stream opened", "duration", time.Since(start))
	return ch, nil
}

var _ careflow.ChatProvider = (*Client)(nil)

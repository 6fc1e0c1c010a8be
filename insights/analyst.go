// Package insights answers analytical questions about practice operations.
// Identical requests within the cache TTL are served without calling the
// provider; fallback replies are never cached.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/pretty"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/cache"
	"github.com/spetersoncode/careflow/client"
)

// Kind classifies an insight.
type Kind string

const (
	KindPositive Kind = "positive"
	KindNegative Kind = "negative"
	KindNeutral  Kind = "neutral"
	KindWarning  Kind = "warning"
)

// Insight is one observation about practice data.
type Insight struct {
	Type           Kind    `json:"type" validate:"required,oneof=positive negative neutral warning"`
	Title          string  `json:"title" validate:"required"`
	Description    string  `json:"description"`
	Recommendation *string `json:"recommendation"`
}

// Report is the result of an insights request.
type Report struct {
	Insights []Insight `json:"insights"`
	Cached   bool      `json:"cached"`
	Fallback bool      `json:"fallback,omitempty"`
}

// Reply is the result of a question.
type Reply struct {
	Answer   string `json:"answer"`
	Cached   bool   `json:"cached"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Fallback texts returned when the provider cannot be used.
var (
	MissingKeyInsight = Insight{
		Type:        KindNeutral,
		Title:       "API Key Required",
		Description: "Configure an API key to enable AI insights.",
	}
	UnavailableInsight = Insight{
		Type:        KindNeutral,
		Title:       "Practice Data Available",
		Description: "Your practice metrics are being tracked. Enable AI insights for detailed analysis.",
	}
)

const (
	MissingKeyAnswer  = "Please configure an API key to use the AI assistant."
	UnavailableAnswer = "I'm having trouble analyzing the data right now. Please try again."
)

// ErrMalformedInsights is returned when the model's reply is not a list of
// insights.
var ErrMalformedInsights = errors.New("insights: malformed model response")

type options struct {
	ttl      time.Duration
	size     int
	now      func() time.Time
	logger   *slog.Logger
	chatOpts []careflow.Option
}

// Option configures an Analyst.
type Option func(*options)

// WithTTL sets how long responses are cached.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithCacheSize bounds the number of cached responses per request kind.
func WithCacheSize(n int) Option {
	return func(o *options) { o.size = n }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the analyst logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithChatOptions sets options passed to every provider call.
func WithChatOptions(opts ...careflow.Option) Option {
	return func(o *options) { o.chatOpts = append(o.chatOpts, opts...) }
}

// Analyst serves insights and answers over practice data.
type Analyst struct {
	provider careflow.ChatProvider
	insights *cache.Cache[[]Insight]
	answers  *cache.Cache[string]
	logger   *slog.Logger
	chatOpts []careflow.Option
	validate *validator.Validate
}

// NewAnalyst creates an Analyst backed by provider.
func NewAnalyst(provider careflow.ChatProvider, opts ...Option) (*Analyst, error) {
	o := options{
		ttl:    cache.DefaultTTL,
		size:   cache.DefaultSize,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	cacheOpts := []cache.Option{cache.WithSize(o.size), cache.WithClock(o.now)}

	ins, err := cache.New[[]Insight](o.ttl, cacheOpts...)
	if err != nil {
		return nil, err
	}
	ans, err := cache.New[string](o.ttl, cacheOpts...)
	if err != nil {
		return nil, err
	}
	return &Analyst{
		provider: provider,
		insights: ins,
		answers:  ans,
		logger:   o.logger,
		chatOpts: o.chatOpts,
		validate: validator.New(),
	}, nil
}

// Insights returns observations about data. A provider failure yields a
// single neutral fallback insight rather than an error.
func (a *Analyst) Insights(ctx context.Context, data any) Report {
	payload := map[string]any{"kind": "insights", "data": data}
	items, hit, err := a.insights.GetOrCompute(ctx, payload, func(ctx context.Context) ([]Insight, error) {
		text, err := a.ask(ctx, insightsPrompt(data))
		if err != nil {
			return nil, err
		}
		return a.parseInsights(text)
	})
	if err != nil {
		a.logger.Warn("insights unavailable", "error", err)
		fallback := UnavailableInsight
		if missingKey(err) {
			fallback = MissingKeyInsight
		}
		return Report{Insights: []Insight{fallback}, Fallback: true}
	}
	a.logger.Debug("insights served", "count", len(items), "cached", hit)
	return Report{Insights: items, Cached: hit}
}

// Answer responds to a question about data in a few sentences.
func (a *Analyst) Answer(ctx context.Context, question string, data any) Reply {
	payload := map[string]any{"kind": "ask", "question": question, "data": data}
	answer, hit, err := a.answers.GetOrCompute(ctx, payload, func(ctx context.Context) (string, error) {
		text, err := a.ask(ctx, questionPrompt(question, data))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	})
	if err != nil {
		a.logger.Warn("answer unavailable", "error", err)
		if missingKey(err) {
			return Reply{Answer: MissingKeyAnswer, Fallback: true}
		}
		return Reply{Answer: UnavailableAnswer, Fallback: true}
	}
	return Reply{Answer: answer, Cached: hit}
}

func (a *Analyst) ask(ctx context.Context, prompt string) (string, error) {
	if a.provider == nil {
		return "", &client.ErrMissingAPIKey{}
	}
	resp, err := a.provider.Chat(ctx, []careflow.Message{{Role: careflow.RoleUser, Content: prompt}}, a.chatOpts...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *Analyst) parseInsights(text string) ([]Insight, error) {
	var items []Insight
	if err := json.Unmarshal([]byte(StripFences(text)), &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInsights, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no insights", ErrMalformedInsights)
	}
	for i := range items {
		if err := a.validate.Struct(items[i]); err != nil {
			return nil, fmt.Errorf("%w: insight %d: %w", ErrMalformedInsights, i, err)
		}
	}
	return items, nil
}

func missingKey(err error) bool {
	var missing *client.ErrMissingAPIKey
	return errors.As(err, &missing)
}

// StripFences removes a surrounding markdown code fence, with or without a
// json language tag.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func indented(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return strings.TrimSpace(string(pretty.Pretty(raw)))
}

func insightsPrompt(data any) string {
	return `You are a healthcare practice operations analyst. Analyze the following practice data and generate 3-5 actionable insights.

Practice Data:
` + indented(data) + `

For each insight:
1. Compare current metrics to the previous period
2. Highlight what is working well
3. Flag concerns or opportunities
4. Provide a specific, actionable recommendation

Return insights as a JSON array with this format:
[
  {
    "type": "positive|negative|neutral|warning",
    "title": "Brief insight title",
    "description": "2-3 sentence description with specific numbers",
    "recommendation": "Specific action to take (optional)"
  }
]

Focus on revenue, patient growth and retention, operational efficiency, service performance and areas needing attention.

Return ONLY the JSON array, no additional text.`
}

func questionPrompt(question string, data any) string {
	return `You are a healthcare practice operations analyst. Answer the following question based on the practice data provided.

Practice Data:
` + indented(data) + `

Question: ` + question + `

Provide a clear, concise answer with specific numbers from the data. If the question cannot be answered with the available data, explain what data would be needed.

Keep your answer to 2-4 sentences.`
}

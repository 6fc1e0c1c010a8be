package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/careflow/client"
	"github.com/spetersoncode/careflow/internal/fake"
	"github.com/spetersoncode/careflow/internal/logging"
)

const twoInsights = "```json\n" + `[
  {"type":"positive","title":"Revenue up","description":"Revenue grew 12%.","recommendation":"Keep the Saturday clinic."},
  {"type":"warning","title":"No-shows rising","description":"No-shows rose from 4% to 7%.","recommendation":null}
]` + "\n```"

func practiceData() map[string]any {
	return map[string]any{
		"current":  map[string]any{"revenue": 112000, "noShowRate": 0.07},
		"previous": map[string]any{"revenue": 100000, "noShowRate": 0.04},
	}
}

func newAnalyst(t *testing.T, p *fake.Provider, opts ...Option) *Analyst {
	t.Helper()
	a, err := NewAnalyst(p, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	require.NoError(t, err)
	return a
}

func TestInsights(t *testing.T) {
	p := &fake.Provider{Reply: twoInsights}
	a := newAnalyst(t, p)

	r := a.Insights(context.Background(), practiceData())
	assert.False(t, r.Cached)
	assert.False(t, r.Fallback)
	require.Len(t, r.Insights, 2)
	assert.Equal(t, KindPositive, r.Insights[0].Type)
	require.NotNil(t, r.Insights[0].Recommendation)
	assert.Equal(t, "Keep the Saturday clinic.", *r.Insights[0].Recommendation)
	assert.Nil(t, r.Insights[1].Recommendation)

	prompt := p.Calls()[0][0].Content
	assert.Contains(t, prompt, "practice operations analyst")
	assert.Contains(t, prompt, `"revenue": 112000`)
	assert.Contains(t, prompt, "Return ONLY the JSON array")
}

func TestInsights_CachedByContent(t *testing.T) {
	p := &fake.Provider{Reply: twoInsights}
	a := newAnalyst(t, p)

	a.Insights(context.Background(), practiceData())
	r := a.Insights(context.Background(), map[string]any{
		"previous": map[string]any{"noShowRate": 0.04, "revenue": 100000},
		"current":  map[string]any{"noShowRate": 0.07, "revenue": 112000},
	})
	assert.True(t, r.Cached)
	assert.Len(t, r.Insights, 2)
	assert.Equal(t, 1, p.CallCount())

	a.Insights(context.Background(), map[string]any{"current": map[string]any{"revenue": 1}})
	assert.Equal(t, 2, p.CallCount())
}

func TestInsights_Expiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &fake.Provider{Reply: twoInsights}
	a := newAnalyst(t, p, WithTTL(time.Hour), WithClock(func() time.Time { return now }))

	a.Insights(context.Background(), practiceData())
	now = now.Add(time.Hour)
	r := a.Insights(context.Background(), practiceData())
	assert.False(t, r.Cached)
	assert.Equal(t, 2, p.CallCount())
}

func TestInsights_FallbackNotCached(t *testing.T) {
	tests := []struct {
		name  string
		p     *fake.Provider
		title string
	}{
		{"missing key", &fake.Provider{Err: &client.ErrMissingAPIKey{Provider: "anthropic"}}, MissingKeyInsight.Title},
		{"provider error", &fake.Provider{Err: errors.New("overloaded")}, UnavailableInsight.Title},
		{"not json", &fake.Provider{Reply: "Revenue is up."}, UnavailableInsight.Title},
		{"empty list", &fake.Provider{Reply: "[]"}, UnavailableInsight.Title},
		{"bad kind", &fake.Provider{Reply: `[{"type":"great","title":"x"}]`}, UnavailableInsight.Title},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnalyst(t, tt.p)
			for range 2 {
				r := a.Insights(context.Background(), practiceData())
				assert.True(t, r.Fallback)
				assert.False(t, r.Cached)
				require.Len(t, r.Insights, 1)
				assert.Equal(t, tt.title, r.Insights[0].Title)
			}
			assert.Equal(t, 2, tt.p.CallCount(), "fallbacks must not be cached")
		})
	}
}

func TestInsights_NilProvider(t *testing.T) {
	a, err := NewAnalyst(nil, WithLogger(logging.Discard()))
	require.NoError(t, err)
	r := a.Insights(context.Background(), practiceData())
	assert.Equal(t, MissingKeyInsight.Title, r.Insights[0].Title)
}

func TestAnswer(t *testing.T) {
	p := &fake.Provider{Reply: "  No-shows rose from 4% to 7%.\n"}
	a := newAnalyst(t, p)

	r := a.Answer(context.Background(), "How are no-shows trending?", practiceData())
	assert.Equal(t, "No-shows rose from 4% to 7%.", r.Answer)
	assert.False(t, r.Cached)
	assert.Contains(t, p.Calls()[0][0].Content, "Question: How are no-shows trending?")

	r = a.Answer(context.Background(), "How are no-shows trending?", practiceData())
	assert.True(t, r.Cached)
	assert.Equal(t, 1, p.CallCount())

	a.Answer(context.Background(), "What about revenue?", practiceData())
	assert.Equal(t, 2, p.CallCount())
}

func TestAnswer_Fallbacks(t *testing.T) {
	a := newAnalyst(t, &fake.Provider{Err: &client.ErrMissingAPIKey{}})
	r := a.Answer(context.Background(), "q", practiceData())
	assert.True(t, r.Fallback)
	assert.Equal(t, MissingKeyAnswer, r.Answer)

	p := &fake.Provider{Err: errors.New("timeout")}
	a = newAnalyst(t, p)
	a.Answer(context.Background(), "q", practiceData())
	r = a.Answer(context.Background(), "q", practiceData())
	assert.Equal(t, UnavailableAnswer, r.Answer)
	assert.Equal(t, 2, p.CallCount())
}

func TestInsightsAndAnswersDoNotShareEntries(t *testing.T) {
	p := &fake.Provider{Reply: twoInsights}
	a := newAnalyst(t, p)
	a.Insights(context.Background(), practiceData())
	r := a.Answer(context.Background(), "", practiceData())
	assert.False(t, r.Cached)
	assert.Equal(t, 2, p.CallCount())
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{"[1]", "[1]"},
		{"```json\n[1]\n```", "[1]"},
		{"```\n[1]\n```", "[1]"},
		{"  [1]  ", "[1]"},
		{"```json[1]", "[1]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in))
	}
}

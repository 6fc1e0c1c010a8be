package model

import "github.com/spetersoncode/careflow"

// ChatPricing contains pricing per million tokens (USD) for chat models.
// Fields are zero if not applicable to a specific provider's model.
type ChatPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	// CachedInputPerMillion is for prompt-cached input tokens (OpenAI only).
	CachedInputPerMillion float64
	// InputPerMillionLong and OutputPerMillionLong apply to contexts over
	// 200K tokens (Google only).
	InputPerMillionLong  float64
	OutputPerMillionLong float64
}

// HasCachedPricing returns true if the model supports cached input pricing.
func (p ChatPricing) HasCachedPricing() bool {
	return p.CachedInputPerMillion > 0
}

// HasLongContextPricing returns true if the model has tiered pricing for long context.
func (p ChatPricing) HasLongContextPricing() bool {
	return p.InputPerMillionLong > 0 || p.OutputPerMillionLong > 0
}

// CalculateCost returns the USD cost of usage at the standard rates.
func CalculateCost(usage careflow.Usage, pricing ChatPricing) float64 {
	input := float64(usage.InputTokens) / 1_000_000 * pricing.InputPerMillion
	output := float64(usage.OutputTokens) / 1_000_000 * pricing.OutputPerMillion
	return input + output
}

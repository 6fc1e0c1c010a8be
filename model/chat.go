// Package model is the catalog of chat models careflow can route to.
//
// A model knows its provider, so the client can pick the right adapter from
// the model alone:
//
//	resp, err := c.Chat(ctx, messages, careflow.WithModel(model.GPT5Mini))
package model

import (
	"fmt"

	"github.com/spetersoncode/careflow"
)

// ChatModel represents a chat/completion model from any provider.
type ChatModel struct {
	id       string
	provider careflow.Provider
	pricing  ChatPricing
}

// String returns the API identifier for this model.
func (m ChatModel) String() string { return m.id }

// Provider returns which provider this model belongs to.
func (m ChatModel) Provider() careflow.Provider { return m.provider }

// Pricing returns the pricing for this model.
func (m ChatModel) Pricing() ChatPricing { return m.pricing }

// Cost returns the USD cost of usage at this model's standard rates.
func (m ChatModel) Cost(usage careflow.Usage) float64 {
	return CalculateCost(usage, m.pricing)
}

// Anthropic Claude models.
var (
	ClaudeOpus45   = ChatModel{id: "claude-opus-4-5", provider: careflow.ProviderAnthropic, pricing: ChatPricing{InputPerMillion: 5.00, OutputPerMillion: 25.00}}
	ClaudeSonnet45 = ChatModel{id: "claude-sonnet-4-5", provider: careflow.ProviderAnthropic, pricing: ChatPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}}
	ClaudeHaiku45  = ChatModel{id: "claude-haiku-4-5", provider: careflow.ProviderAnthropic, pricing: ChatPricing{InputPerMillion: 1.00, OutputPerMillion: 5.00}}

	// DefaultClaudeModel is the recommended default Anthropic model.
	DefaultClaudeModel = ClaudeSonnet45
)

// OpenAI models.
var (
	GPT5     = ChatModel{id: "gpt-5", provider: careflow.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 1.25, OutputPerMillion: 10.00, CachedInputPerMillion: 0.125}}
	GPT5Mini = ChatModel{id: "gpt-5-mini", provider: careflow.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 0.25, OutputPerMillion: 1.00, CachedInputPerMillion: 0.025}}
	GPT5Nano = ChatModel{id: "gpt-5-nano", provider: careflow.ProviderOpenAI, pricing: ChatPricing{InputPerMillion: 0.10, OutputPerMillion: 0.40, CachedInputPerMillion: 0.01}}

	// DefaultGPTModel is the recommended default OpenAI model.
	DefaultGPTModel = GPT5Mini
)

// Google Gemini models.
var (
	Gemini25Pro       = ChatModel{id: "gemini-2.5-pro", provider: careflow.ProviderGoogle, pricing: ChatPricing{InputPerMillion: 1.25, OutputPerMillion: 10.00, InputPerMillionLong: 2.50, OutputPerMillionLong: 15.00}}
	Gemini25Flash     = ChatModel{id: "gemini-2.5-flash", provider: careflow.ProviderGoogle, pricing: ChatPricing{InputPerMillion: 0.30, OutputPerMillion: 2.50}}
	Gemini25FlashLite = ChatModel{id: "gemini-2.5-flash-lite", provider: careflow.ProviderGoogle, pricing: ChatPricing{InputPerMillion: 0.10, OutputPerMillion: 0.40}}

	// DefaultGeminiModel is the recommended default Google model.
	DefaultGeminiModel = Gemini25Flash
)

var catalog = []ChatModel{
	ClaudeOpus45, ClaudeSonnet45, ClaudeHaiku45,
	GPT5, GPT5Mini, GPT5Nano,
	Gemini25Pro, Gemini25Flash, Gemini25FlashLite,
}

// All returns every catalogued model.
func All() []ChatModel {
	return append([]ChatModel(nil), catalog...)
}

// Default returns the recommended model for a provider.
func Default(p careflow.Provider) (ChatModel, error) {
	switch p {
	case careflow.ProviderAnthropic:
		return DefaultClaudeModel, nil
	case careflow.ProviderOpenAI:
		return DefaultGPTModel, nil
	case careflow.ProviderGoogle:
		return DefaultGeminiModel, nil
	default:
		return ChatModel{}, fmt.Errorf("model: unknown provider %q", p)
	}
}

// Parse resolves a model for provider p. An empty id selects the provider's
// default. Ids missing from the catalog are accepted without pricing so that
// new vendor models can be used before they are listed here.
func Parse(p careflow.Provider, id string) (ChatModel, error) {
	def, err := Default(p)
	if err != nil {
		return ChatModel{}, err
	}
	if id == "" {
		return def, nil
	}
	for _, m := range catalog {
		if m.id == id {
			if m.provider != p {
				return ChatModel{}, fmt.Errorf("model: %q is served by %s, not %s", id, m.provider, p)
			}
			return m, nil
		}
	}
	return ChatModel{id: id, provider: p}, nil
}

package careflow

// Provider identifies a text-generation provider.
type Provider string

// String returns the provider identifier.
func (p Provider) String() string { return string(p) }

// Supported providers.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// Model identifies a chat model and the provider that serves it.
type Model interface {
	String() string
	Provider() Provider
}

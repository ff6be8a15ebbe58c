// LLM provider factory.
//
// coordinator.Open builds its provider this way, sharing one transport
// session across every call:
//
//	pt, _ := llm.ParseProviderType("claude")
//	provider, err := llm.NewProviderBuilder(pt).
//	    Model(settings.LLM.Model).
//	    Endpoint(settings.LLM.Endpoint).
//	    HTTPClient(llm.NewHTTPClient()).
//	    APIKey(settings.LLM.APIKey)
//
// An empty model or endpoint selects the provider's default.

package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// ClientOptions configures the transport of a provider.
type ClientOptions struct {
	// BaseURL overrides the provider's public endpoint when non-empty.
	BaseURL string
	// HTTPClient is the shared transport session. Nil creates a private one.
	HTTPClient *http.Client
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.HTTPClient == nil {
		o.HTTPClient = NewHTTPClient()
	}
	return o
}

// NewHTTPClient creates the connection pool a provider uses for all calls.
// Per-attempt deadlines come from the request context, so the client
// itself carries no timeout.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	return &http.Client{Transport: transport}
}

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models) or any OpenAI-compatible endpoint.
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT4oMini
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet4
	case ProviderDeepSeek:
		return ModelDeepSeekChat
	case ProviderGemini:
		return ModelGeminiFlash25
	default:
		return ""
	}
}

// DefaultEndpoint returns the public API base URL for this provider.
func (p ProviderType) DefaultEndpoint() string {
	switch p {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderDeepSeek:
		return deepseekBaseURL
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com"
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	endpoint     string
	httpClient   *http.Client
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the default model.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// Endpoint sets the API base URL.
func (b *ProviderBuilder) Endpoint(url string) *ProviderBuilder {
	b.endpoint = strings.TrimRight(url, "/")
	return b
}

// HTTPClient sets the transport session shared by all calls.
func (b *ProviderBuilder) HTTPClient(client *http.Client) *ProviderBuilder {
	b.httpClient = client
	return b
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	opts := ClientOptions{
		BaseURL:    b.endpoint,
		HTTPClient: b.httpClient,
	}

	switch b.providerType {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, opts), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, opts), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(apiKey, model, opts), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, opts), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}

// Default model per provider.
const (
	ModelOpenAIGPT4oMini        = "gpt-4o-mini"
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelDeepSeekChat           = "deepseek-chat"
	ModelGeminiFlash25          = "gemini-2.5-flash"
)

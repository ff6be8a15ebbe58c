// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Supports deepseek-chat and deepseek-reasoner models

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a provider for DeepSeek's OpenAI-compatible API.
// An empty opts.BaseURL selects the public DeepSeek endpoint.
func NewDeepSeekProvider(apiKey, model string, opts ClientOptions) *OpenAIProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = deepseekBaseURL
	}
	return newOpenAICompatible("deepseek", apiKey, model, opts)
}

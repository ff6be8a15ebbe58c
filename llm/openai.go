// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Any OpenAI-compatible endpoint via a custom base URL

package llm

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible chat completion endpoints.
type OpenAIProvider struct {
	client     *openai.Client
	httpClient *http.Client
	name       string
	model      string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, opts ClientOptions) *OpenAIProvider {
	return newOpenAICompatible("openai", apiKey, model, opts)
}

func newOpenAICompatible(name, apiKey, model string, opts ClientOptions) *OpenAIProvider {
	opts = opts.withDefaults()

	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	config.HTTPClient = opts.HTTPClient

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(config),
		httpClient: opts.HTTPClient,
		name:       name,
		model:      model,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the default model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertToOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return Response{}, ClassifyError(p.name, err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, NewError(p.name, KindProvider, 0, "response contained no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return Response{}, NewError(p.name, KindProvider, 0, "response contained no message content")
	}

	usedModel := resp.Model
	if usedModel == "" {
		usedModel = model
	}

	return Response{
		Text:         content,
		Usage:        newUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
		Model:        usedModel,
		ResponseTime: time.Since(start),
	}, nil
}

// Close releases idle connections held by the transport session.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// convertToOpenAIMessages converts our ChatMessage to openai.ChatCompletionMessage
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)

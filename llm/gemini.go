// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Role alternation: consecutive turns of one role are merged and the
//   conversation always opens with a user turn

package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiPlaceholder opens a conversation that would otherwise start with a model turn.
const geminiPlaceholder = "I need your assistance."

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client     *genai.Client
	httpClient *http.Client
	model      string
	initErr    error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, opts ClientOptions) *GeminiProvider {
	opts = opts.withDefaults()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: opts.BaseURL,
		},
	})
	if err != nil {
		return &GeminiProvider{
			httpClient: opts.HTTPClient,
			model:      model,
			initErr:    fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiProvider{
		client:     client,
		httpClient: opts.HTTPClient,
		model:      model,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the default model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Complete sends a chat completion request.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if p.initErr != nil {
		return Response{}, &Error{Provider: p.Name(), Kind: KindProvider, Err: p.initErr}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, systemInstruction := convertToGeminiMessages(req.Messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	start := time.Now()
	response, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return Response{}, ClassifyError(p.Name(), err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return Response{}, NewError(p.Name(), KindProvider, 0, "response contained no candidates")
	}

	var content strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			content.WriteString(part.Text)
		}
	}
	if content.Len() == 0 {
		return Response{}, NewError(p.Name(), KindProvider, 0, "response contained no content parts")
	}

	var usage TokenUsage
	if response.UsageMetadata != nil {
		usage = newUsage(
			int(response.UsageMetadata.PromptTokenCount),
			int(response.UsageMetadata.CandidatesTokenCount),
			int(response.UsageMetadata.TotalTokenCount),
		)
	}

	usedModel := response.ModelVersion
	if usedModel == "" {
		usedModel = model
	}

	return Response{
		Text:         content.String(),
		Usage:        usage,
		Model:        usedModel,
		ResponseTime: time.Since(start),
	}, nil
}

// Close releases idle connections held by the transport session.
func (p *GeminiProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// convertToGeminiMessages converts our ChatMessage to Gemini format.
// System messages are joined into the returned instruction.
func convertToGeminiMessages(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	var role genai.Role
	var texts []string
	flush := func() {
		if len(texts) > 0 {
			contents = append(contents, genai.NewContentFromText(strings.Join(texts, "\n"), role))
		}
	}

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		next := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			next = genai.RoleModel
		}
		if next != role {
			flush()
			role = next
			texts = nil
		}
		texts = append(texts, msg.Content)
	}
	flush()

	if len(contents) == 0 || contents[0].Role != genai.RoleUser {
		opening := genai.NewContentFromText(geminiPlaceholder, genai.RoleUser)
		contents = append([]*genai.Content{opening}, contents...)
	}

	return contents, strings.Join(system, "\n")
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)

// Package llm provides shared data models for LLM providers.
package llm

import "time"

// Message roles understood by every provider variant.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}

// Request is a provider-agnostic completion request.
type Request struct {
	// Model overrides the provider default when non-empty.
	Model       string
	Messages    []ChatMessage
	Temperature float64
	// MaxTokens caps the completion length.
	MaxTokens int
}

// Response is the normalized result of a completion.
type Response struct {
	Text         string        `json:"text"`
	Usage        TokenUsage    `json:"usage"`
	Model        string        `json:"model"`
	ResponseTime time.Duration `json:"response_time"`
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// newUsage fills TotalTokens when the provider omits it.
func newUsage(prompt, completion, total int) TokenUsage {
	if total == 0 {
		total = prompt + completion
	}
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}

// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error classification
//
// Retrying is deliberately absent here; the coordinator owns it.

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a single chat-completion capability.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the default model used when a request names none.
	Model() string

	// Complete sends one chat completion request. Failures are returned as
	// *Error; a partially parsed response is never returned.
	Complete(ctx context.Context, req Request) (Response, error)

	// Close releases the provider's transport session.
	Close() error
}

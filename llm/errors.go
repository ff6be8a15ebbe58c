// Provider failure taxonomy.
//
// Every adapter converts SDK and transport errors into *Error so callers can
// classify failures with errors.Is against the Err* sentinels without knowing
// which SDK produced them.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindProvider  Kind = "provider"
	KindCanceled  Kind = "canceled"
)

// Sentinels matched by (*Error).Is.
var (
	ErrAuth      = errors.New("authentication failed")
	ErrRateLimit = errors.New("rate limited")
	ErrTimeout   = errors.New("request timed out")
	ErrTransport = errors.New("transport failure")
	ErrProvider  = errors.New("provider error")
	ErrCanceled  = errors.New("request canceled")
)

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Message    string
	// RetryAfter is the server-suggested wait, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (http %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindRateLimit:
		return ErrRateLimit
	case KindTimeout:
		return ErrTimeout
	case KindTransport:
		return ErrTransport
	case KindCanceled:
		return ErrCanceled
	default:
		return ErrProvider
	}
}

// KindOf returns the kind of a classified error, or KindProvider for
// anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProvider
}

// NewError builds a classified error. Used by adapters for malformed
// responses and by tests standing in for a provider.
func NewError(provider string, kind Kind, statusCode int, message string) *Error {
	return &Error{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
	}
}

// KindForStatus maps an HTTP status code onto the failure taxonomy.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindTransport
	default:
		return KindProvider
	}
}

// ClassifyError converts an SDK or transport error into *Error. Errors that
// are already classified are returned unchanged.
//
// RetryAfter is only populated for Anthropic errors. The OpenAI-compatible
// and Gemini SDK errors expose no response headers, so rate limits from
// those providers leave it zero and the retry policy's exponential backoff
// decides the delay.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	e := &Error{Provider: provider, Err: err}

	var oaiAPI *openai.APIError
	var oaiReq *openai.RequestError
	var antErr *anthropic.Error
	var genErr genai.APIError
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
	case errors.Is(err, context.Canceled):
		e.Kind = KindCanceled
	case errors.As(err, &oaiAPI):
		e.StatusCode = oaiAPI.HTTPStatusCode
		e.Message = oaiAPI.Message
		e.Kind = KindForStatus(oaiAPI.HTTPStatusCode)
	case errors.As(err, &oaiReq):
		e.StatusCode = oaiReq.HTTPStatusCode
		e.Kind = KindForStatus(oaiReq.HTTPStatusCode)
	case errors.As(err, &antErr):
		e.StatusCode = antErr.StatusCode
		e.Kind = KindForStatus(antErr.StatusCode)
		if antErr.Response != nil {
			e.RetryAfter = parseRetryAfter(antErr.Response.Header.Get("Retry-After"))
		}
	case errors.As(err, &genErr):
		e.StatusCode = genErr.Code
		e.Message = genErr.Message
		e.Kind = KindForStatus(genErr.Code)
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		e.Kind = KindTransport
	default:
		e.Kind = KindProvider
	}
	return e
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

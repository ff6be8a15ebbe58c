package coordinator

import (
	"errors"
	"time"

	"github.com/richinex/textai/llm"
)

// Outcome is the classification of a failed attempt.
type Outcome int

const (
	// Fatal ends the request with the attempt's error.
	Fatal Outcome = iota
	// Retry schedules another attempt after Delay.
	Retry
	// Exhausted ends a request whose retryable failures used every attempt.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Retry:
		return "retry"
	case Exhausted:
		return "exhausted"
	default:
		return "fatal"
	}
}

// Decision is what the coordinator does after a failed attempt.
type Decision struct {
	Outcome Outcome
	Kind    llm.Kind
	// Delay before the next attempt; zero unless Outcome is Retry.
	Delay time.Duration
	// Status the coordinator reports while the decision is in effect.
	Status Status
}

// RetryPolicy decides how failed provider attempts are handled.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at 1s, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// Decide classifies err from the zero-based attempt. Rate limits back off
// exponentially, or by the provider's Retry-After when that is longer.
// Timeouts and transport failures back off linearly. Authentication
// failures are fatal and disable the coordinator; other provider errors are
// fatal for the request only.
func (p RetryPolicy) Decide(err error, attempt int) Decision {
	kind := llm.KindOf(err)
	d := Decision{Kind: kind, Outcome: Fatal, Status: StatusReady}

	var delay time.Duration
	switch kind {
	case llm.KindAuth:
		d.Status = StatusError
		return d
	case llm.KindRateLimit:
		delay = p.BaseDelay << min(attempt, 30)
		if ra := retryAfter(err); ra > delay {
			delay = ra
		}
		d.Status = StatusRateLimited
	case llm.KindTimeout, llm.KindTransport:
		delay = p.BaseDelay * time.Duration(attempt+1)
		d.Status = StatusProcessing
	default:
		return d
	}

	if attempt+1 >= p.MaxAttempts {
		d.Outcome = Exhausted
		return d
	}
	if delay > p.MaxDelay || delay < 0 {
		delay = p.MaxDelay
	}
	d.Outcome = Retry
	d.Delay = delay
	return d
}

func retryAfter(err error) time.Duration {
	var e *llm.Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

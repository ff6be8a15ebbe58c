package coordinator

import (
	"sync"
	"time"

	"github.com/richinex/textai/llm"
)

// Status is the externally observable state of a coordinator.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusProcessing   Status = "processing"
	StatusRateLimited  Status = "rate_limited"
	StatusMaintenance  Status = "maintenance"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// maxErrorRecords bounds Snapshot.RecentErrors.
const maxErrorRecords = 20

// ErrorRecord describes one failed provider attempt.
type ErrorRecord struct {
	Time      time.Time `json:"time"`
	Kind      llm.Kind  `json:"kind"`
	Message   string    `json:"message"`
	Attempt   int       `json:"attempt"`
	RequestID string    `json:"request_id"`
	// Backoff is the wait scheduled after this failure, zero when the
	// request was not retried.
	Backoff time.Duration `json:"backoff,omitempty"`
}

// Snapshot is a read-only copy of a coordinator's state and metrics.
type Snapshot struct {
	Instance         string        `json:"instance"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	Status           Status        `json:"status"`
	QueueDepth       int           `json:"queue_depth"`
	RequestCount     int           `json:"request_count"`
	SuccessCount     int           `json:"success_count"`
	FailureCount     int           `json:"failure_count"`
	ErrorCount       int           `json:"error_count"`
	TokensUsed       int           `json:"tokens_used"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	AvgLatency       time.Duration `json:"avg_latency"`
	MinLatency       time.Duration `json:"min_latency"`
	MaxLatency       time.Duration `json:"max_latency"`
	// SuccessRate is successes over processed requests, 0 before any.
	SuccessRate  float64       `json:"success_rate"`
	LastResponse *llm.Response `json:"last_response,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	RecentErrors []ErrorRecord `json:"recent_errors,omitempty"`
	HistorySize  int           `json:"history_size"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Uptime       time.Duration `json:"uptime"`
}

// stateStore holds counters and status. Counters are written only by the
// dispatch goroutine; the mutex makes snapshots from other goroutines safe.
type stateStore struct {
	mu sync.Mutex

	started      time.Time
	status       Status
	systemPrompt string

	requests         int
	successes        int
	failures         int
	errors           int
	promptTokens     int
	completionTokens int
	totalTokens      int
	latencyTotal     time.Duration
	minLatency       time.Duration
	maxLatency       time.Duration

	lastResponse *llm.Response
	lastError    string
	recent       []ErrorRecord

	consecutive int
	// disabled holds the authentication error that stopped dispatch.
	disabled error
	// pausedAt is set while dispatch is paused in maintenance.
	pausedAt time.Time
}

func newStateStore(systemPrompt string) *stateStore {
	return &stateStore{
		started:      time.Now(),
		status:       StatusInitializing,
		systemPrompt: systemPrompt,
	}
}

func (s *stateStore) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *stateStore) getStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stateStore) setSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPrompt = prompt
}

func (s *stateStore) getSystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPrompt
}

// beginRequest counts a dispatched request.
func (s *stateStore) beginRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.status = StatusProcessing
}

// recordAttemptError counts one failed attempt.
func (s *stateStore) recordAttemptError(rec ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors++
	s.lastError = rec.Message
	s.recent = append(s.recent, rec)
	if over := len(s.recent) - maxErrorRecords; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
}

// recordSuccess closes a request that produced resp.
func (s *stateStore) recordSuccess(resp llm.Response, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.successes++
	s.consecutive = 0
	s.promptTokens += resp.Usage.PromptTokens
	s.completionTokens += resp.Usage.CompletionTokens
	s.totalTokens += resp.Usage.TotalTokens

	s.latencyTotal += latency
	if s.minLatency == 0 || latency < s.minLatency {
		s.minLatency = latency
	}
	if latency > s.maxLatency {
		s.maxLatency = latency
	}

	s.lastResponse = &resp
	s.status = StatusReady
}

// failure describes how a terminal request failure affects readiness.
type failure struct {
	err error
	// status reported after the failure.
	status Status
	// counts toward the consecutive-failure threshold.
	counts bool
	// disables dispatch until Reset.
	disables bool
}

// recordFailure closes a failed request and reports whether dispatch must
// pause in maintenance.
func (s *stateStore) recordFailure(f failure, threshold int) (paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	s.lastError = f.err.Error()
	s.status = f.status

	if f.disables {
		s.disabled = f.err
		s.status = StatusError
		return false
	}
	if f.counts {
		s.consecutive++
	}
	if s.consecutive > threshold {
		s.status = StatusMaintenance
		s.pausedAt = time.Now()
		return true
	}
	return false
}

// disabledErr returns the authentication error that disabled dispatch.
func (s *stateStore) disabledErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// paused reports whether dispatch is paused and since when.
func (s *stateStore) paused() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.pausedAt.IsZero(), s.pausedAt
}

// resume ends a maintenance pause without clearing counters.
func (s *stateStore) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pausedAt.IsZero() {
		return
	}
	s.pausedAt = time.Time{}
	s.consecutive = 0
	s.status = StatusReady
}

// reset zeroes counters, clears the disabled and paused conditions, and
// marks the coordinator ready.
func (s *stateStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusReady
	s.requests, s.successes, s.failures, s.errors = 0, 0, 0, 0
	s.promptTokens, s.completionTokens, s.totalTokens = 0, 0, 0
	s.latencyTotal, s.minLatency, s.maxLatency = 0, 0, 0
	s.lastResponse = nil
	s.lastError = ""
	s.recent = nil
	s.consecutive = 0
	s.disabled = nil
	s.pausedAt = time.Time{}
}

func (s *stateStore) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Status:           s.status,
		RequestCount:     s.requests,
		SuccessCount:     s.successes,
		FailureCount:     s.failures,
		ErrorCount:       s.errors,
		TokensUsed:       s.totalTokens,
		PromptTokens:     s.promptTokens,
		CompletionTokens: s.completionTokens,
		MinLatency:       s.minLatency,
		MaxLatency:       s.maxLatency,
		LastError:        s.lastError,
		RecentErrors:     append([]ErrorRecord(nil), s.recent...),
		SystemPrompt:     s.systemPrompt,
		Uptime:           time.Since(s.started),
	}
	if s.successes > 0 {
		snap.AvgLatency = s.latencyTotal / time.Duration(s.successes)
	}
	if processed := s.successes + s.failures; processed > 0 {
		snap.SuccessRate = float64(s.successes) / float64(processed)
	}
	if s.lastResponse != nil {
		resp := *s.lastResponse
		snap.LastResponse = &resp
	}
	return snap
}

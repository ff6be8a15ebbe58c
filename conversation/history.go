// Package conversation keeps the bounded turn history of a coordinator and
// assembles provider context from it.
//
// Information Hiding:
// - Turn storage and eviction order hidden behind History
// - Token budget trimming applied while building context
// - Thread-safe access via RWMutex; readers get copies

package conversation

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/richinex/textai/llm"
)

// DefaultMaxTurns is the history size used when none is configured.
const DefaultMaxTurns = 50

// ErrPromptTooLarge is returned by Build when the system prompt and question
// alone exceed the token budget.
var ErrPromptTooLarge = errors.New("prompt exceeds token budget")

// Turn is one completed question/response exchange.
// Model, Usage and Latency are metadata.
type Turn struct {
	Timestamp time.Time      `json:"timestamp"`
	Question  string         `json:"question"`
	Response  string         `json:"response"`
	Model     string         `json:"model,omitempty"`
	Usage     llm.TokenUsage `json:"usage,omitzero"`
	Latency   time.Duration  `json:"latency,omitempty"`
}

func (t Turn) withoutMetadata() Turn {
	return Turn{
		Timestamp: t.Timestamp,
		Question:  t.Question,
		Response:  t.Response,
	}
}

// History is an ordered, bounded sequence of turns, oldest first.
type History struct {
	mu    sync.RWMutex
	turns []Turn
	max   int
}

// NewHistory creates a history holding at most maxTurns turns.
// Non-positive values select DefaultMaxTurns.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{max: maxTurns}
}

// Max returns the configured maximum.
func (h *History) Max() int {
	return h.max
}

// Record appends a turn, evicting the oldest turns past the maximum.
func (h *History) Record(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	h.evictLocked()
}

// Restore replaces the history with turns, keeping the newest ones that fit.
func (h *History) Restore(turns []Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append([]Turn(nil), turns...)
	h.evictLocked()
}

func (h *History) evictLocked() {
	if over := len(h.turns) - h.max; over > 0 {
		// Copy down so the evicted prefix is released.
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
}

// Clear removes every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of the history, oldest first.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// recent returns a copy of the last n turns.
func (h *History) recent(n int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	return append([]Turn(nil), h.turns[len(h.turns)-n:]...)
}

// Order selects the sort order of a history query.
type Order string

const (
	OrderNewest Order = "newest"
	OrderOldest Order = "oldest"
)

// HistoryQuery selects and shapes turns returned by Query.
type HistoryQuery struct {
	// Limit caps the number of returned turns. Zero means all.
	Limit int
	// Model keeps only turns answered by this model.
	Model string
	// Since keeps only turns recorded at or after this time.
	Since time.Time
	// IncludeMetadata keeps Model, Usage and Latency.
	IncludeMetadata bool
	// Order defaults to OrderNewest.
	Order Order
}

// Query filters, orders and limits the history.
func (h *History) Query(q HistoryQuery) []Turn {
	turns := h.Turns()

	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if q.Model != "" && t.Model != q.Model {
			continue
		}
		if !q.Since.IsZero() && t.Timestamp.Before(q.Since) {
			continue
		}
		if !q.IncludeMetadata {
			t = t.withoutMetadata()
		}
		out = append(out, t)
	}

	if q.Order != OrderOldest {
		slices.Reverse(out)
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

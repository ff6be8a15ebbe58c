// Package storage provides durable conversation history for a coordinator.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures and protocols

package storage

import (
	"context"

	"github.com/richinex/textai/conversation"
)

// TurnStore mirrors a coordinator's turn history, keyed by instance name.
// The coordinator's in-memory history stays authoritative; a store only
// restores it on start and follows its appends and clears.
type TurnStore interface {
	// Append records one completed turn for an instance.
	Append(ctx context.Context, instance string, turn conversation.Turn) error

	// Load returns the newest limit turns of an instance, oldest first.
	// A non-positive limit returns all turns.
	// Returns empty slice (not nil) if the instance has no history.
	Load(ctx context.Context, instance string, limit int) ([]conversation.Turn, error)

	// Clear deletes the history of an instance.
	Clear(ctx context.Context, instance string) error

	// Close releases the backend.
	Close() error
}

// Package storage provides in-memory turn storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral instances

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/richinex/textai/conversation"
)

// InMemoryStorage implements TurnStore using an in-memory map.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu        sync.RWMutex
	instances map[string][]conversation.Turn
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		instances: make(map[string][]conversation.Turn),
	}
}

// Append records a turn for an instance.
func (s *InMemoryStorage) Append(ctx context.Context, instance string, turn conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[instance] = append(s.instances[instance], turn)
	return nil
}

// Load returns the newest limit turns of an instance, oldest first.
func (s *InMemoryStorage) Load(ctx context.Context, instance string, limit int) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.instances[instance]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	// Return a copy to avoid external mutations
	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// Clear deletes the history of an instance.
func (s *InMemoryStorage) Clear(ctx context.Context, instance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, instance)
	return nil
}

// Instances lists the instance names with stored history, sorted by name.
func (s *InMemoryStorage) Instances(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.instances))
	for name := range s.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *InMemoryStorage) Close() error {
	return nil
}

// Verify InMemoryStorage implements TurnStore
var _ TurnStore = (*InMemoryStorage)(nil)

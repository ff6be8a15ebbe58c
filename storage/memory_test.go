package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/richinex/textai/conversation"
	"github.com/richinex/textai/llm"
)

func testTurn(i int) conversation.Turn {
	return conversation.Turn{
		Timestamp: time.UnixMilli(1_700_000_000_000 + int64(i)*1000),
		Question:  fmt.Sprintf("question %d", i),
		Response:  fmt.Sprintf("answer %d", i),
		Model:     "gpt-4o-mini",
		Usage:     llm.TokenUsage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
		Latency:   250 * time.Millisecond,
	}
}

// storeContract runs the TurnStore behavior shared by every backend.
func storeContract(t *testing.T, store TurnStore) {
	t.Helper()
	ctx := context.Background()

	loaded, err := store.Load(ctx, "missing", 0)
	if err != nil {
		t.Fatalf("Load of missing instance failed: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", loaded)
	}

	for i := 1; i <= 5; i++ {
		if err := store.Append(ctx, "kitchen", testTurn(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := store.Append(ctx, "garage", testTurn(99)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	all, err := store.Load(ctx, "kitchen", 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(all))
	}
	if all[0].Question != "question 1" || all[4].Question != "question 5" {
		t.Errorf("turns out of order: first=%q last=%q", all[0].Question, all[4].Question)
	}
	want := testTurn(1)
	if !all[0].Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp: expected %v, got %v", want.Timestamp, all[0].Timestamp)
	}
	if all[0].Usage != want.Usage || all[0].Latency != want.Latency || all[0].Model != want.Model {
		t.Errorf("metadata not preserved: %#v", all[0])
	}

	newest, err := store.Load(ctx, "kitchen", 2)
	if err != nil {
		t.Fatalf("Load with limit failed: %v", err)
	}
	if len(newest) != 2 || newest[0].Question != "question 4" || newest[1].Question != "question 5" {
		t.Errorf("expected the two newest turns oldest first, got %#v", newest)
	}

	if err := store.Clear(ctx, "kitchen"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	cleared, _ := store.Load(ctx, "kitchen", 0)
	if len(cleared) != 0 {
		t.Errorf("expected no turns after Clear, got %d", len(cleared))
	}
	other, _ := store.Load(ctx, "garage", 0)
	if len(other) != 1 {
		t.Errorf("Clear must not touch other instances, got %d turns", len(other))
	}
}

func TestInMemoryStorageContract(t *testing.T) {
	storeContract(t, NewInMemoryStorage())
}

func TestInMemoryStorageLoadReturnsCopy(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()
	_ = store.Append(ctx, "a", testTurn(1))

	loaded, _ := store.Load(ctx, "a", 0)
	loaded[0].Question = "mutated"

	again, _ := store.Load(ctx, "a", 0)
	if again[0].Question != "question 1" {
		t.Errorf("Load must return a copy, got %q", again[0].Question)
	}
}

func TestInMemoryStorageInstances(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()
	_ = store.Append(ctx, "b", testTurn(1))
	_ = store.Append(ctx, "a", testTurn(2))

	names, err := store.Instances(ctx)
	if err != nil {
		t.Fatalf("Instances failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}
}

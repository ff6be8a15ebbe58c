package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSqliteStorageContract(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	storeContract(t, storage)
}

func TestSqliteStoragePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "textai.db")
	ctx := context.Background()

	storage, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	if err := storage.Append(ctx, "kitchen", testTurn(1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := storage.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	turns, err := reopened.Load(ctx, "kitchen", 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Response != "answer 1" {
		t.Errorf("expected persisted turn, got %#v", turns)
	}
}

func TestSqliteStorageInstances(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	_ = storage.Append(ctx, "first", testTurn(1))
	_ = storage.Append(ctx, "second", testTurn(2))

	names, err := storage.Instances(ctx)
	if err != nil {
		t.Fatalf("Instances failed: %v", err)
	}
	if len(names) != 2 || names[0] != "second" {
		t.Errorf("expected most recent instance first, got %v", names)
	}
}

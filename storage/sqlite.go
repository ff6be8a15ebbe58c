// Package storage provides SQLite turn storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/textai/conversation"
)

// SqliteStorage implements TurnStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return newSqliteStorage(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	return newSqliteStorage(db)
}

func newSqliteStorage(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instance TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			question TEXT NOT NULL,
			response TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_turns_instance
		ON turns(instance, id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append records one turn for an instance.
func (s *SqliteStorage) Append(ctx context.Context, instance string, turn conversation.Turn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns
		(instance, created_at, question, response, model, prompt_tokens, completion_tokens, total_tokens, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		instance,
		turn.Timestamp.UnixMilli(),
		turn.Question,
		turn.Response,
		turn.Model,
		turn.Usage.PromptTokens,
		turn.Usage.CompletionTokens,
		turn.Usage.TotalTokens,
		turn.Latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// Load returns the newest limit turns of an instance, oldest first.
// Returns empty slice if the instance has no history.
func (s *SqliteStorage) Load(ctx context.Context, instance string, limit int) ([]conversation.Turn, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, question, response, model, prompt_tokens, completion_tokens, total_tokens, latency_ms
		FROM (
			SELECT * FROM turns
			WHERE instance = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC`,
		instance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []conversation.Turn{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			turn      conversation.Turn
			createdAt int64
			latencyMs int64
		)
		if err := rows.Scan(
			&createdAt,
			&turn.Question,
			&turn.Response,
			&turn.Model,
			&turn.Usage.PromptTokens,
			&turn.Usage.CompletionTokens,
			&turn.Usage.TotalTokens,
			&latencyMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Timestamp = time.UnixMilli(createdAt)
		turn.Latency = time.Duration(latencyMs) * time.Millisecond
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	return turns, nil
}

// Clear deletes the history of an instance.
func (s *SqliteStorage) Clear(ctx context.Context, instance string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE instance = ?", instance)
	if err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}
	return nil
}

// Instances lists the instance names with stored history, most recently
// active first.
func (s *SqliteStorage) Instances(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT instance FROM turns GROUP BY instance ORDER BY MAX(id) DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	instances := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// Verify SqliteStorage implements TurnStore
var _ TurnStore = (*SqliteStorage)(nil)

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mlpilot/mlpilot/internal/run"
	"github.com/mlpilot/mlpilot/internal/verify"
)

// Outcome kinds.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
)

// Outcome is the terminal record of a run: exactly one of Summary or
// Rejection is set, matching Kind.
type Outcome struct {
	RunID      string
	Kind       string
	Summary    *verify.SolutionSummary
	Rejection  *run.Rejection
	RecordedAt time.Time
}

// Store persists pipeline runs as an append-only sequence of
// phase-transition events plus one terminal outcome record. The event log is
// the sole source of truth for resuming or auditing a run.
type Store interface {
	CreateRun(ctx context.Context, runID, description, taskType, datasetURI string) error
	AppendTransition(ctx context.Context, ev run.TransitionEvent) error
	Transitions(ctx context.Context, runID string) ([]run.TransitionEvent, error)
	LastPhase(ctx context.Context, runID string) (run.Phase, error)

	SaveOutcome(ctx context.Context, outcome Outcome) error
	Outcome(ctx context.Context, runID string) (*Outcome, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and
// busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys must be enabled per connection via PRAGMA with
	// modernc.org/sqlite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One writer connection keeps event sequence assignment serial.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

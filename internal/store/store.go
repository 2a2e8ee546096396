package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// migrations are applied in order; migrations[i] brings the ledger to version i+1
var migrations = []string{
	schemaV1,
	schemaV2, // history indexes
}

var currentSchemaVersion = len(migrations)

// Store is the sync ledger: a history of runs and their batches
type Store struct {
	db *sql.DB
}

// Open opens the ledger at path, creating and migrating it as needed
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	// one run writes at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger %s: %w", path, err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the ledger
func (s *Store) CheckIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		for v := version + 1; v <= currentSchemaVersion; v++ {
			if _, err := tx.Exec(migrations[v-1]); err != nil {
				return fmt.Errorf("apply schema v%d: %w", v, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
				return fmt.Errorf("record schema v%d: %w", v, err)
			}
		}
		return nil
	})
}

// getSchemaVersion returns the highest applied schema version, 0 for a new file
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil || exists == 0 {
		return 0, err
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Run statuses
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Batch statuses
const (
	BatchOK     = "ok"
	BatchFailed = "failed"
)

// Run represents one sync invocation
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Mode       string
	FullScan   bool
	DryRun     bool
	EndDate    string
	Mappings   int
	Batches    int
	Status     string
	Error      string
}

// Duration returns how long the run took, or zero while it is running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Batch represents the outcome of syncing one date context
type Batch struct {
	ID           int64
	RunID        int64
	Context      string
	Timestamp    int64
	Files        int
	Source       string
	ExitCode     int
	Duration     time.Duration
	Checkpointed bool
	Status       string
	Error        string
	CompletedAt  time.Time
}

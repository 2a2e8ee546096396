package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertBatch records a batch outcome and bumps its run's batch counter
func (s *Store) InsertBatch(b *Batch) error {
	if b.CompletedAt.IsZero() {
		b.CompletedAt = time.Now()
	}

	return s.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO batches
			(run_id, context, context_ts, files, source, exit_code, duration_ms, checkpointed, status, error, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.RunID, b.Context, b.Timestamp, b.Files, b.Source, b.ExitCode, b.Duration.Milliseconds(),
			boolToInt(b.Checkpointed), b.Status, b.Error, b.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		b.ID = id

		if _, err := tx.Exec(`UPDATE runs SET batches = batches + 1 WHERE id = ?`, b.RunID); err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		return nil
	})
}

// GetBatches returns the batches of a run in processing order
func (s *Store) GetBatches(runID int64) ([]*Batch, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, context, context_ts, files, COALESCE(source, ''), exit_code, duration_ms,
		       checkpointed, status, COALESCE(error, ''), completed_at
		FROM batches
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		var b Batch
		var durationMs int64
		var checkpointed int

		err := rows.Scan(&b.ID, &b.RunID, &b.Context, &b.Timestamp, &b.Files, &b.Source, &b.ExitCode,
			&durationMs, &checkpointed, &b.Status, &b.Error, &b.CompletedAt)
		if err != nil {
			return nil, err
		}

		b.Duration = time.Duration(durationMs) * time.Millisecond
		b.Checkpointed = checkpointed == 1
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}

// LastCheckpointedContext returns the newest date context any run advanced
// the checkpoint to, or "" if none did
func (s *Store) LastCheckpointedContext() (string, error) {
	var context string
	err := s.db.QueryRow(`
		SELECT context FROM batches
		WHERE checkpointed = 1
		ORDER BY context_ts DESC, id DESC
		LIMIT 1
	`).Scan(&context)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return context, err
}

// CountSyncedFiles returns the number of files in successful batches
func (s *Store) CountSyncedFiles() (int, error) {
	var total int
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(files), 0) FROM batches WHERE status = ?
	`, BatchOK).Scan(&total)
	return total, err
}

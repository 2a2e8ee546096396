package store

import (
	"database/sql"
	"fmt"
	"time"
)

// StartRun records a new run in the running state and returns its ID
func (s *Store) StartRun(run *Run) (int64, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	result, err := s.db.Exec(`
		INSERT INTO runs (started_at, mode, full_scan, dry_run, end_date, mappings, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt, run.Mode, boolToInt(run.FullScan), boolToInt(run.DryRun), run.EndDate, run.Mappings, run.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// FinishRun marks a run as finished with the given status
func (s *Store) FinishRun(id int64, status, errMsg string) error {
	result, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`, time.Now(), status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d does not exist", id)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, mode, full_scan, dry_run, COALESCE(end_date, ''),
	mappings, batches, status, COALESCE(error, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var finished sql.NullTime
	var fullScan, dryRun int

	err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Mode, &fullScan, &dryRun, &run.EndDate,
		&run.Mappings, &run.Batches, &run.Status, &run.Error)
	if err != nil {
		return nil, err
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.FullScan = fullScan == 1
	run.DryRun = dryRun == 1
	return &run, nil
}

// GetRun returns a run by ID, or nil if it does not exist
func (s *Store) GetRun(id int64) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRunsByStatus returns the number of runs with the given status
func (s *Store) CountRunsByStatus(status string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE status = ?`, status).Scan(&count)
	return count, err
}

// PruneRuns deletes all but the most recent keep runs together with their
// batches and returns the number of runs removed
func (s *Store) PruneRuns(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var removed int
	err := s.Transaction(func(tx *sql.Tx) error {
		const stale = `SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT -1 OFFSET ?`
		if _, err := tx.Exec(`DELETE FROM batches WHERE run_id IN (`+stale+`)`, keep); err != nil {
			return fmt.Errorf("failed to delete batches: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
		if err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	return removed, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

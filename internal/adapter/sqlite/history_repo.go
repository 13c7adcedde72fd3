package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// ErrRunExists is returned when a run ID is recorded twice
var ErrRunExists = errors.New("run already recorded")

var _ port.RunHistory = (*Store)(nil)

// RecordRun inserts a new run
func (s *Store) RecordRun(run *port.RunRecord) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at, total) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Total)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
		}
		return err
	}
	return nil
}

// RecordResult stores one request outcome of a run
func (s *Store) RecordResult(runID string, result domain.DownloadResult) error {
	var errText string
	if result.Err != nil {
		errText = result.Err.Error()
	}

	query := `
		INSERT INTO run_results (
			run_id, request_id, kind, status, path, hash, size, elapsed_ms,
			cache_hit, retries, category, reason, error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		runID, result.RequestID, string(result.Kind), string(result.Status),
		result.Path, result.Hash, result.Size, result.Elapsed.Milliseconds(),
		result.CacheHit, result.Retries, string(result.Category), result.Reason, errText,
		time.Now().UnixMilli())
	return err
}

// FinishRun stores the final counters of a run
func (s *Store) FinishRun(run *port.RunRecord) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET finished_at = ?, total = ?, completed = ?, skipped = ?, failed = ?, bytes = ?
		WHERE id = ?
	`, finished.UnixMilli(), run.Total, run.Completed, run.Skipped, run.Failed, run.Bytes, run.ID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	run.FinishedAt = &finished
	return nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]*port.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, total, completed, skipped, failed, bytes
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*port.RunRecord
	for rows.Next() {
		run := &port.RunRecord{}
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&run.ID, &started, &finished, &run.Total, &run.Completed, &run.Skipped, &run.Failed, &run.Bytes); err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CompletedArchives returns the newest completed download per hash
func (s *Store) CompletedArchives() ([]port.ArchiveRecord, error) {
	rows, err := s.db.Query(`
		SELECT r.hash, r.path, r.size
		FROM run_results r
		INNER JOIN (
			SELECT hash, MAX(id) AS id
			FROM run_results
			WHERE status = 'completed' AND hash != '' AND path != ''
			GROUP BY hash
		) latest ON latest.id = r.id
		ORDER BY r.hash
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.ArchiveRecord
	for rows.Next() {
		var rec port.ArchiveRecord
		if err := rows.Scan(&rec.Hash, &rec.Path, &rec.Size); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneRuns deletes runs started before now - olderThan, with their results.
// Returns the number of runs deleted
func (s *Store) PruneRuns(olderThan time.Duration) (int, error) {
	threshold := time.Now().Add(-olderThan).UnixMilli()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_results WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, threshold); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, threshold)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

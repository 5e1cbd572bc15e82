package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const snapshotColumns = `job_id, video_id, prompt, status, percent, message, current_step,
    tool_name, error_code, deliverable_url, effects_strategy, steps_json, created_at, updated_at`

// Save inserts or replaces the snapshot for snap.JobID.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("jobstore: store is closed")
	}
	if strings.TrimSpace(snap.JobID) == "" {
		return errors.New("jobstore: snapshot requires a job id")
	}
	now := time.Now().UTC()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = now
	}
	stepsJSON, err := json.Marshal(snap.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	err = s.execWithRetry(ctx,
		`INSERT INTO job_snapshots (`+snapshotColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id) DO UPDATE SET
            status = excluded.status,
            percent = excluded.percent,
            message = excluded.message,
            current_step = excluded.current_step,
            tool_name = excluded.tool_name,
            error_code = excluded.error_code,
            deliverable_url = excluded.deliverable_url,
            effects_strategy = excluded.effects_strategy,
            steps_json = excluded.steps_json,
            updated_at = excluded.updated_at`,
		snap.JobID,
		snap.VideoID,
		snap.Prompt,
		snap.Status,
		snap.Percent,
		nullableString(snap.Message),
		snap.CurrentStep,
		nullableString(snap.ToolName),
		nullableString(snap.ErrorCode),
		nullableString(snap.DeliverableURL),
		nullableString(snap.EffectsStrategy),
		string(stepsJSON),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.JobID, err)
	}
	return nil
}

// Get returns the snapshot for jobID, or nil when none exists.
func (s *Store) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+snapshotColumns+` FROM job_snapshots WHERE job_id = ?`, jobID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", jobID, err)
	}
	return snap, nil
}

// ListOptions filters List results.
type ListOptions struct {
	Statuses []string
	Limit    int
}

// List returns snapshots ordered by most recently updated first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM job_snapshots`
	args := make([]any, 0, len(opts.Statuses)+1)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY updated_at DESC, job_id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Stats returns the number of snapshots per status.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM job_snapshots GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("snapshot stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[string]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// MarkInterrupted fails every non-terminal snapshot. Runs do not survive a
// restart, so snapshots left running by a previous process are closed out.
func (s *Store) MarkInterrupted(ctx context.Context, message string) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE job_snapshots SET status = ?, message = ?, error_code = ?, updated_at = ?
            WHERE status IN (?, ?)`,
			StatusFailed, message, "transient", time.Now().UTC().Format(time.RFC3339Nano),
			StatusPending, StatusRunning,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return affected, nil
}

// Remove deletes the snapshot for jobID.
func (s *Store) Remove(ctx context.Context, jobID string) (bool, error) {
	ctx = ensureContext(ctx)
	var removed bool
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM job_snapshots WHERE job_id = ?`, jobID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		removed = n > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove snapshot %s: %w", jobID, err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(scanner rowScanner) (*Snapshot, error) {
	var (
		snap      Snapshot
		message   sql.NullString
		toolName  sql.NullString
		errorCode sql.NullString
		url       sql.NullString
		effects   sql.NullString
		stepsJSON sql.NullString
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(
		&snap.JobID,
		&snap.VideoID,
		&snap.Prompt,
		&snap.Status,
		&snap.Percent,
		&message,
		&snap.CurrentStep,
		&toolName,
		&errorCode,
		&url,
		&effects,
		&stepsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	snap.Message = message.String
	snap.ToolName = toolName.String
	snap.ErrorCode = errorCode.String
	snap.DeliverableURL = url.String
	snap.EffectsStrategy = effects.String
	if stepsJSON.Valid && stepsJSON.String != "" && stepsJSON.String != "null" {
		if err := json.Unmarshal([]byte(stepsJSON.String), &snap.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
	}
	snap.CreatedAt = parseTime(createdAt)
	snap.UpdatedAt = parseTime(updatedAt)
	return &snap, nil
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

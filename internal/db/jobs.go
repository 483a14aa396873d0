package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
	"github.com/storyreel/backend/internal/render"
)

// The render_jobs table is the durable artifact of the pipeline. All writes
// guard on status so a terminal record can never be mutated, whatever races.

func (db *DB) CreateJob(ctx context.Context, job *models.RenderJob) error {
	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO render_jobs (id, project_id, status, progress, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.ProjectID, job.Status, job.Progress, settings,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error) {
	query := `
		SELECT
			id, project_id, status, progress, settings,
			output_url, file_size_bytes, duration_seconds, error_message,
			created_at, updated_at, completed_at
		FROM render_jobs
		WHERE id = $1
	`

	job, err := scanJob(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, render.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render job: %w", err)
	}

	return job, nil
}

// ListJobs returns jobs newest first, with optional project and status
// filters and the total count for pagination.
func (db *DB) ListJobs(ctx context.Context, projectID *uuid.UUID, status string, limit, offset int) ([]models.RenderJob, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	if projectID != nil {
		args = append(args, *projectID)
		where += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM render_jobs " + where
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count render jobs: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT
			id, project_id, status, progress, settings,
			output_url, file_size_bytes, duration_seconds, error_message,
			created_at, updated_at, completed_at
		FROM render_jobs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query render jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.RenderJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan render job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, total, rows.Err()
}

func (db *DB) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE render_jobs
		SET status = $1, progress = 0, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	return db.guardedUpdate(ctx, id, query, models.JobStatusProcessing, time.Now(), id, models.JobStatusPending)
}

// UpdateProgress never moves progress backwards: GREATEST keeps the stored
// value monotonic even when updates from parallel scene workers race.
func (db *DB) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE render_jobs
		SET progress = GREATEST(progress, $1), updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := db.ExecContext(ctx, query, progress, time.Now(), id, models.JobStatusProcessing)
	return err
}

func (db *DB) Complete(ctx context.Context, id uuid.UUID, outputURL string, fileSizeBytes int64, durationSeconds float64) error {
	now := time.Now()
	query := `
		UPDATE render_jobs
		SET status = $1, progress = 100, output_url = $2, file_size_bytes = $3,
		    duration_seconds = $4, updated_at = $5, completed_at = $5
		WHERE id = $6 AND status = $7
	`
	return db.guardedUpdate(ctx, id, query,
		models.JobStatusCompleted, outputURL, fileSizeBytes, durationSeconds, now, id, models.JobStatusProcessing)
}

func (db *DB) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE render_jobs
		SET status = $1, error_message = $2, updated_at = $3, completed_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`
	return db.guardedUpdate(ctx, id, query,
		models.JobStatusFailed, reason, time.Now(), id, models.JobStatusPending, models.JobStatusProcessing)
}

// FailOrphaned sweeps jobs a dead worker left in processing.
func (db *DB) FailOrphaned(ctx context.Context, reason string) (int, error) {
	query := `
		UPDATE render_jobs
		SET status = $1, error_message = $2, updated_at = $3, completed_at = $3
		WHERE status = $4
	`
	res, err := db.ExecContext(ctx, query, models.JobStatusFailed, reason, time.Now(), models.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep orphaned jobs: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// guardedUpdate distinguishes "no such job" from "job already terminal" when
// a status-guarded update matches nothing.
func (db *DB) guardedUpdate(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM render_jobs WHERE id = $1)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return render.ErrJobNotFound
		}
		return render.ErrTerminalJob
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.RenderJob, error) {
	job := &models.RenderJob{}
	var settings []byte

	err := row.Scan(
		&job.ID, &job.ProjectID, &job.Status, &job.Progress, &settings,
		&job.OutputURL, &job.FileSizeBytes, &job.DurationSeconds, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(settings, &job.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return job, nil
}

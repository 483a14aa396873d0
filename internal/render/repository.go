package render

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
)

var (
	// ErrJobNotFound is returned when a job id resolves to nothing.
	ErrJobNotFound = errors.New("render job not found")

	// ErrTerminalJob is returned on an attempt to mutate a completed or
	// failed job. Terminal jobs are immutable; retries create new jobs.
	ErrTerminalJob = errors.New("render job already terminal")
)

// Repository is the single serialized update path for render job records.
// All status and progress mutations funnel through here; implementations
// must reject transitions out of a terminal state.
type Repository interface {
	CreateJob(ctx context.Context, job *models.RenderJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error)
	ListJobs(ctx context.Context, projectID *uuid.UUID, status string, limit, offset int) ([]models.RenderJob, int, error)

	// MarkProcessing transitions pending -> processing with progress 0.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// UpdateProgress persists a new progress value. Values below the stored
	// one are ignored, keeping progress monotonic even if updates race.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// Complete transitions processing -> completed with the output facts.
	Complete(ctx context.Context, id uuid.UUID, outputURL string, fileSizeBytes int64, durationSeconds float64) error

	// Fail transitions a non-terminal job to failed with a reason.
	Fail(ctx context.Context, id uuid.UUID, reason string) error

	// FailOrphaned marks every job still in processing as failed. Called on
	// startup: a processing job with no live worker cannot be resumed, since
	// external encoder state is gone. Returns how many were swept.
	FailOrphaned(ctx context.Context, reason string) (int, error)
}

// SceneSource is the consumed contract with the project/scene store: ordered
// scenes with image references plus the narration audio path, by project.
type SceneSource interface {
	ProjectScenes(ctx context.Context, projectID uuid.UUID) ([]models.SceneInput, error)
	NarrationPath(ctx context.Context, projectID uuid.UUID) (string, error)
}

// Notifier publishes job-state transitions for live-progress listeners.
// The pipeline is a producer only on this channel.
type Notifier interface {
	Publish(event models.JobEvent)
}

// NopNotifier is used when no notification hub is wired up.
type NopNotifier struct{}

func (NopNotifier) Publish(models.JobEvent) {}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type QualityTier string

const (
	QualityDraft    QualityTier = "draft" // fast encode, higher CRF
	QualityStandard QualityTier = "standard"
	QualityHigh     QualityTier = "high"
)

type MotionIntensity string

const (
	MotionSubtle   MotionIntensity = "subtle"
	MotionStandard MotionIntensity = "standard"
	MotionDramatic MotionIntensity = "dramatic"
)

// RenderSettings are fixed at submission time and immutable once the job starts.
type RenderSettings struct {
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	FPS             int             `json:"fps"`
	Quality         QualityTier     `json:"quality"`
	MotionIntensity MotionIntensity `json:"motion_intensity"`
}

// RenderJob represents one video assembly request. Exactly one job exists per
// render attempt — a retry creates a new job, it never mutates a terminal one.
type RenderJob struct {
	ID              uuid.UUID      `json:"id"`
	ProjectID       uuid.UUID      `json:"project_id"`
	Status          JobStatus      `json:"status"`
	Progress        int            `json:"progress"` // 0-100, monotonic while processing
	Settings        RenderSettings `json:"settings"`
	OutputURL       *string        `json:"output_url,omitempty"`
	FileSizeBytes   *int64         `json:"file_size_bytes,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// SceneInput is the read-only projection the pipeline consumes: one still image
// plus the word count of the scene's script slice. Ordering is significant and
// SceneNumber must be strictly increasing within a sequence.
type SceneInput struct {
	SceneNumber int    `json:"scene_number"`
	ImagePath   string `json:"image_path"`
	WordCount   int    `json:"word_count"`
}

// SceneTiming is one entry of a TimingPlan.
type SceneTiming struct {
	SceneNumber     int     `json:"scene_number"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (t SceneTiming) EndSeconds() float64 {
	return t.StartSeconds + t.DurationSeconds
}

// TimingPlan is the allocator's output: contiguous scene timings whose
// durations sum to the narration duration.
type TimingPlan []SceneTiming

// TotalSeconds returns the sum of all scene durations.
func (p TimingPlan) TotalSeconds() float64 {
	var total float64
	for _, s := range p {
		total += s.DurationSeconds
	}
	return total
}

// DTOs for API responses

type CreateRenderRequest struct {
	Resolution      string `json:"resolution,omitempty" validate:"omitempty,resolution"`
	FPS             int    `json:"fps,omitempty" validate:"omitempty,min=15,max=60"`
	Quality         string `json:"quality,omitempty" validate:"omitempty,oneof=draft standard high"`
	MotionIntensity string `json:"motion_intensity,omitempty" validate:"omitempty,oneof=subtle standard dramatic"`
}

type CreateRenderResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

type ListRenderJobsResponse struct {
	Jobs   []RenderJob `json:"jobs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// JobEvent is published on the notification channel whenever a job's status or
// progress changes. This service is a producer only on that channel.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Error     *string   `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

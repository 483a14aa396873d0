package render

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
)

// Stage checkpoint boundaries. These are configuration, not contract — the
// contract is monotonicity and 100 on success.
const (
	progressProbeDone    = 10
	progressScenesDone   = 75
	progressAssemblyDone = 95
	progressDone         = 100
)

// progressTracker maps pipeline stages onto the job's 0-100 progress value
// and serializes updates. The per-scene synthesis step runs in parallel, so
// workers report completion through a counter here rather than each
// computing and overwriting an absolute percentage.
type progressTracker struct {
	mu        sync.Mutex
	jobID     uuid.UUID
	projectID uuid.UUID
	repo      Repository
	notifier  Notifier
	last      int

	totalScenes int
	doneScenes  int
}

func newProgressTracker(jobID, projectID uuid.UUID, repo Repository, notifier Notifier) *progressTracker {
	return &progressTracker{
		jobID:     jobID,
		projectID: projectID,
		repo:      repo,
		notifier:  notifier,
	}
}

func (p *progressTracker) probeDone(ctx context.Context, totalScenes int) {
	p.mu.Lock()
	p.totalScenes = totalScenes
	p.mu.Unlock()
	p.set(ctx, progressProbeDone)
}

// sceneDone records one completed scene clip and advances progress within
// the synthesis band, evenly divided across scenes.
func (p *progressTracker) sceneDone(ctx context.Context) {
	p.mu.Lock()
	p.doneScenes++
	done, total := p.doneScenes, p.totalScenes
	p.mu.Unlock()

	if total == 0 {
		return
	}
	band := progressScenesDone - progressProbeDone
	p.set(ctx, progressProbeDone+band*done/total)
}

func (p *progressTracker) assemblyDone(ctx context.Context) {
	p.set(ctx, progressAssemblyDone)
}

func (p *progressTracker) finished(ctx context.Context) {
	p.set(ctx, progressDone)
}

// set persists and publishes a progress value, dropping anything that would
// move backwards.
func (p *progressTracker) set(ctx context.Context, value int) {
	p.mu.Lock()
	if value <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = value
	p.mu.Unlock()

	if err := p.repo.UpdateProgress(ctx, p.jobID, value); err != nil {
		log.Printf("[Render] Job %s: failed to persist progress %d: %v", p.jobID, value, err)
	}

	p.notifier.Publish(models.JobEvent{
		JobID:     p.jobID,
		ProjectID: p.projectID,
		Status:    models.JobStatusProcessing,
		Progress:  value,
		Timestamp: time.Now(),
	})
}

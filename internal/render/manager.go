// Package render owns the assembly pipeline's state machine: it wraps the
// prober, timing allocator, effect synthesizer, and assembler into an
// observable, cancellable, recoverable asynchronous unit of work.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/storyreel/backend/internal/assembler"
	"github.com/storyreel/backend/internal/effects"
	"github.com/storyreel/backend/internal/media"
	"github.com/storyreel/backend/internal/models"
	"github.com/storyreel/backend/internal/queue"
	"github.com/storyreel/backend/internal/timing"
)

// CancelledReason is the error text recorded on user-cancelled jobs.
const CancelledReason = "cancelled by user"

// Interfaces over the pipeline stages so the manager can be exercised
// without spawning encoder processes.

type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

type ClipSynthesizer interface {
	Synthesize(ctx context.Context, req effects.ClipRequest) (string, error)
}

type VideoAssembler interface {
	Assemble(ctx context.Context, clips []string, narrationPath, outputPath string, totalSeconds float64, quality models.QualityTier) (*assembler.Result, error)
}

// OutputStore publishes the assembled file to durable storage and returns
// the URL recorded on the job.
type OutputStore interface {
	Publish(ctx context.Context, jobID uuid.UUID, localPath string) (string, error)
}

// TaskQueue decouples submission from execution. Satisfied by *queue.Queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *queue.Task) error
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Task, error)
}

// Manager is the render job state machine:
// pending -> processing -> {completed | failed}, terminal states immutable.
type Manager struct {
	repo      Repository
	queue     TaskQueue
	scenes    SceneSource
	prober    Prober
	synth     ClipSynthesizer
	assembler VideoAssembler
	outputs   OutputStore
	notifier  Notifier
	allocator *timing.Allocator

	workspaceRoot string

	// encodeSem bounds live encoder processes across all jobs. Unbounded
	// simultaneous encodes saturate the machine; this is a correctness
	// concern here, not a tuning knob.
	encodeSem *semaphore.Weighted

	mu      sync.Mutex
	running map[uuid.UUID]*jobHandle
}

type jobHandle struct {
	cancel    context.CancelFunc
	cancelled bool
}

type ManagerConfig struct {
	WorkspaceRoot        string
	MaxConcurrentEncodes int64
	MinSceneSeconds      float64
	MaxSceneSeconds      float64
}

func NewManager(
	repo Repository,
	q TaskQueue,
	scenes SceneSource,
	prober Prober,
	synth ClipSynthesizer,
	asm VideoAssembler,
	outputs OutputStore,
	notifier Notifier,
	cfg ManagerConfig,
) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Manager{
		repo:          repo,
		queue:         q,
		scenes:        scenes,
		prober:        prober,
		synth:         synth,
		assembler:     asm,
		outputs:       outputs,
		notifier:      notifier,
		allocator:     timing.NewAllocator(cfg.MinSceneSeconds, cfg.MaxSceneSeconds),
		workspaceRoot: cfg.WorkspaceRoot,
		encodeSem:     semaphore.NewWeighted(cfg.MaxConcurrentEncodes),
		running:       make(map[uuid.UUID]*jobHandle),
	}
}

// Submit persists a new pending job and enqueues it. Returns immediately;
// the caller polls or subscribes for the result.
func (m *Manager) Submit(ctx context.Context, projectID uuid.UUID, settings models.RenderSettings) (*models.RenderJob, error) {
	job := &models.RenderJob{
		ID:        uuid.New(),
		ProjectID: projectID,
		Status:    models.JobStatusPending,
		Settings:  settings,
	}

	if err := m.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create render job: %w", err)
	}

	if err := m.queue.Enqueue(ctx, &queue.Task{JobID: job.ID, ProjectID: projectID}); err != nil {
		// The record exists but will never run; fail it so it cannot sit in
		// pending forever.
		m.repo.Fail(ctx, job.ID, fmt.Sprintf("failed to enqueue: %v", err))
		return nil, fmt.Errorf("failed to enqueue render job: %w", err)
	}

	m.notifier.Publish(models.JobEvent{
		JobID:     job.ID,
		ProjectID: projectID,
		Status:    models.JobStatusPending,
		Timestamp: time.Now(),
	})

	return job, nil
}

// Cancel terminates a job. An in-flight job has its child processes killed
// via context cancellation; a pending job is failed directly so the worker
// skips it when dequeued.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	handle, ok := m.running[jobID]
	if ok {
		handle.cancelled = true
		handle.cancel()
	}
	m.mu.Unlock()

	if ok {
		return nil // the worker records the terminal state
	}

	job, err := m.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrTerminalJob
	}
	return m.repo.Fail(ctx, jobID, CancelledReason)
}

// RecoverOrphans fails any job left in processing by a dead worker and
// sweeps leftover workspaces. Called once at startup, before the first
// dequeue: external encoder state cannot be trusted to resume mid-stream.
func (m *Manager) RecoverOrphans(ctx context.Context) {
	n, err := m.repo.FailOrphaned(ctx, "worker restarted during processing")
	if err != nil {
		log.Printf("[Render] Orphan recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("[Render] Marked %d orphaned job(s) as failed", n)
	}
	SweepOrphans(m.workspaceRoot)
}

// Start runs the worker loop until ctx is done. concurrency bounds how many
// jobs are processed simultaneously.
func (m *Manager) Start(ctx context.Context, concurrency int) {
	log.Printf("[Render] Worker started with concurrency: %d", concurrency)
	m.RecoverOrphans(ctx)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.workLoop(ctx)
		}()
	}
	wg.Wait()
	log.Println("[Render] Worker shut down")
}

func (m *Manager) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			task, err := m.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Render] Dequeue error: %v", err)
				continue
			}
			if task == nil {
				continue // no task available
			}

			m.process(ctx, task)
		}
	}
}

// process drives one job from pending to a terminal state. Every stage error
// is converted into a failed job here; nothing propagates as a fault that
// could take the worker down.
func (m *Manager) process(ctx context.Context, task *queue.Task) {
	jobID := task.JobID

	job, err := m.repo.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("[Render] Job %s: cannot load: %v", jobID, err)
		return
	}
	if job.Status != models.JobStatusPending {
		// Cancelled or already handled; the queue entry is stale.
		log.Printf("[Render] Job %s: skipping, status=%s", jobID, job.Status)
		return
	}

	if err := m.repo.MarkProcessing(ctx, jobID); err != nil {
		log.Printf("[Render] Job %s: cannot mark processing: %v", jobID, err)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	handle := &jobHandle{cancel: cancel}
	m.mu.Lock()
	m.running[jobID] = handle
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.running, jobID)
		m.mu.Unlock()
	}()

	log.Printf("[Render] Job %s: processing (project %s)", jobID, job.ProjectID)
	started := time.Now()

	result, renderErr := m.renderJob(jobCtx, job)

	if renderErr != nil {
		reason := renderErr.Error()
		m.mu.Lock()
		if handle.cancelled {
			reason = CancelledReason
		}
		m.mu.Unlock()

		log.Printf("[Render] Job %s: failed after %v: %s", jobID, time.Since(started).Round(time.Second), reason)
		if err := m.repo.Fail(ctx, jobID, reason); err != nil {
			log.Printf("[Render] Job %s: could not persist failure: %v", jobID, err)
		}
		m.publishTerminal(job, models.JobStatusFailed, &reason)
		return
	}

	if err := m.repo.Complete(ctx, jobID, result.outputURL, result.fileSizeBytes, result.durationSeconds); err != nil {
		log.Printf("[Render] Job %s: could not persist completion: %v", jobID, err)
		return
	}

	log.Printf("[Render] Job %s: completed in %v (%.1fs video, %d bytes)",
		jobID, time.Since(started).Round(time.Second), result.durationSeconds, result.fileSizeBytes)
	m.publishTerminal(job, models.JobStatusCompleted, nil)
}

type renderResult struct {
	outputURL       string
	fileSizeBytes   int64
	durationSeconds float64
}

// renderJob executes the pipeline stages in order:
// probe narration -> allocate timings -> synthesize clips -> assemble -> publish.
// The workspace is released unconditionally, success or failure.
func (m *Manager) renderJob(ctx context.Context, job *models.RenderJob) (*renderResult, error) {
	tracker := newProgressTracker(job.ID, job.ProjectID, m.repo, m.notifier)

	scenes, err := m.scenes.ProjectScenes(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenes: %w", err)
	}
	if len(scenes) == 0 {
		return nil, timing.ErrNoScenes
	}

	narrationPath, err := m.scenes.NarrationPath(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to locate narration: %w", err)
	}

	info, err := m.prober.Probe(ctx, narrationPath)
	if err != nil {
		return nil, err
	}
	if !info.HasAudio {
		return nil, fmt.Errorf("%w: %s has no audio stream", assembler.ErrMissingAudio, narrationPath)
	}
	tracker.probeDone(ctx, len(scenes))

	plan, err := m.allocator.Allocate(scenes, info.DurationSeconds)
	if err != nil {
		return nil, err
	}

	ws, err := NewWorkspace(m.workspaceRoot, job.ID)
	if err != nil {
		return nil, err
	}
	defer ws.Release()

	clips, err := m.synthesizeClips(ctx, job, scenes, plan, ws, tracker)
	if err != nil {
		return nil, err
	}

	if err := m.encodeSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	result, err := m.assembler.Assemble(ctx, clips, narrationPath, ws.OutputPath(), info.DurationSeconds, job.Settings.Quality)
	m.encodeSem.Release(1)
	if err != nil {
		return nil, err
	}
	tracker.assemblyDone(ctx)

	outputURL, err := m.outputs.Publish(ctx, job.ID, ws.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("failed to publish output: %w", err)
	}
	tracker.finished(ctx)

	return &renderResult{
		outputURL:       outputURL,
		fileSizeBytes:   result.FileSizeBytes,
		durationSeconds: result.DurationSeconds,
	}, nil
}

// synthesizeClips renders every scene clip in parallel, bounded by the
// shared encode semaphore. Clip order in the returned slice matches the
// timing plan exactly.
func (m *Manager) synthesizeClips(ctx context.Context, job *models.RenderJob, scenes []models.SceneInput, plan models.TimingPlan, ws *Workspace, tracker *progressTracker) ([]string, error) {
	clips := make([]string, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	for i := range scenes {
		i := i
		g.Go(func() error {
			if err := m.encodeSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer m.encodeSem.Release(1)

			req := effects.ClipRequest{
				ImagePath:       scenes[i].ImagePath,
				OutputPath:      ws.ClipPath(scenes[i].SceneNumber),
				DurationSeconds: plan[i].DurationSeconds,
				SceneIndex:      i,
				Settings:        job.Settings,
			}

			path, err := m.synthesizeWithRetry(gctx, req)
			if err != nil {
				return err
			}

			clips[i] = path
			tracker.sceneDone(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

// synthesizeWithRetry retries a transient encode failure once. Undecodable
// images, timeouts, and cancellations fail immediately.
func (m *Manager) synthesizeWithRetry(ctx context.Context, req effects.ClipRequest) (string, error) {
	path, err := m.synth.Synthesize(ctx, req)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, effects.ErrEncoding) || ctx.Err() != nil {
		return "", err
	}

	log.Printf("[Render] Scene %d: transient encode failure, retrying once: %v", req.SceneIndex, err)
	return m.synth.Synthesize(ctx, req)
}

func (m *Manager) publishTerminal(job *models.RenderJob, status models.JobStatus, errMsg *string) {
	progress := 0
	if status == models.JobStatusCompleted {
		progress = progressDone
	}
	m.notifier.Publish(models.JobEvent{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Status:    status,
		Progress:  progress,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

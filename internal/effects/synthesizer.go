package effects

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/storyreel/backend/internal/media"
	"github.com/storyreel/backend/internal/models"
)

var (
	// ErrEncoding marks a non-zero exit from the encoder. Transient by nature
	// (a segfaulting encode can succeed on retry).
	ErrEncoding = errors.New("clip encoding failed")

	// ErrUnsupportedImage marks an input image the backend cannot decode.
	// Never retried.
	ErrUnsupportedImage = errors.New("unsupported image")
)

const imageCheckTimeout = 15 * time.Second

// Synthesizer turns one still image plus a duration into a short video clip
// with a deterministic pan/zoom motion applied.
type Synthesizer struct {
	runner *media.Runner

	// Wall-clock budget: TimeoutScale seconds per second of clip duration,
	// never below TimeoutFloor.
	TimeoutScale float64
	TimeoutFloor time.Duration
}

func NewSynthesizer(runner *media.Runner, timeoutScale float64, timeoutFloor time.Duration) *Synthesizer {
	return &Synthesizer{
		runner:       runner,
		TimeoutScale: timeoutScale,
		TimeoutFloor: timeoutFloor,
	}
}

// ClipRequest describes one clip to synthesize.
type ClipRequest struct {
	ImagePath       string
	OutputPath      string
	DurationSeconds float64
	SceneIndex      int
	Settings        models.RenderSettings
}

// Synthesize renders the clip and returns its path. The motion pattern is
// chosen by scene position so consecutive scenes visibly differ.
func (s *Synthesizer) Synthesize(ctx context.Context, req ClipRequest) (string, error) {
	if err := s.checkImage(ctx, req.ImagePath); err != nil {
		return "", err
	}

	pattern := PatternForScene(req.SceneIndex)
	vf := BuildFilter(pattern, req.Settings.MotionIntensity, req.DurationSeconds, req.Settings.Width, req.Settings.Height, req.Settings.FPS)

	log.Printf("[Effects] Scene %d: pattern=%s duration=%.2fs", req.SceneIndex, pattern, req.DurationSeconds)

	args := []string{
		"-loop", "1",
		"-i", req.ImagePath,
		"-vf", vf,
		"-t", fmt.Sprintf("%.3f", req.DurationSeconds),
		"-c:v", "libx264",
		"-preset", presetFor(req.Settings.Quality),
		"-crf", crfFor(req.Settings.Quality),
		"-pix_fmt", "yuv420p",
		"-an", // clips carry no audio; narration is muxed at assembly
		"-y",
		req.OutputPath,
	}

	if err := s.runner.Run(ctx, s.timeoutFor(req.DurationSeconds), args...); err != nil {
		if errors.Is(err, media.ErrTimeout) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w (scene %d, pattern %s): %v", ErrEncoding, req.SceneIndex, pattern, err)
	}

	return req.OutputPath, nil
}

// checkImage verifies the image exists and is decodable before spending an
// encode slot on it. Decode failures here are permanent, not transient.
func (s *Synthesizer) checkImage(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}

	_, err := s.runner.RunProbe(ctx, imageCheckTimeout,
		"-v", "error",
		"-show_entries", "stream=codec_name",
		"-print_format", "json",
		path,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}

	return nil
}

func (s *Synthesizer) timeoutFor(durationSeconds float64) time.Duration {
	t := time.Duration(durationSeconds * s.TimeoutScale * float64(time.Second))
	if t < s.TimeoutFloor {
		t = s.TimeoutFloor
	}
	return t
}

// Quality tier mappings. Draft trades size and fidelity for encode speed;
// high does the opposite.
func presetFor(q models.QualityTier) string {
	switch q {
	case models.QualityDraft:
		return "ultrafast"
	case models.QualityHigh:
		return "slow"
	default:
		return "medium"
	}
}

func crfFor(q models.QualityTier) string {
	switch q {
	case models.QualityDraft:
		return "28"
	case models.QualityHigh:
		return "18"
	default:
		return "23"
	}
}

// Package assembler concatenates per-scene clips and muxes them against the
// narration track, producing the final verified video file.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storyreel/backend/internal/media"
	"github.com/storyreel/backend/internal/models"
)

var (
	ErrEmptyInput   = errors.New("no clips to assemble")
	ErrMissingAudio = errors.New("narration audio missing")
	ErrAssembly     = errors.New("assembly failed")
)

const (
	// A successful exit code alone does not prove a usable file: the output
	// is re-probed and rejected when it drifts from the expected duration or
	// is implausibly small.
	durationTolerance = 1.0 // seconds
	minPlausibleBytes = 4096

	// tpad holds the last frame this long if the clips underrun the
	// narration; -t trims the overrun case. Either way the output is never
	// shorter than the audio.
	underrunPadSeconds = 60
)

// Prober re-inspects the assembled output. Satisfied by *media.Prober.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

type Result struct {
	FileSizeBytes   int64
	DurationSeconds float64
}

// Assembler owns the concat-and-mux step. Strictly sequential: it runs only
// after every per-scene clip exists.
type Assembler struct {
	runner *media.Runner
	prober Prober

	TimeoutScale float64
	TimeoutFloor time.Duration
}

func New(runner *media.Runner, prober Prober, timeoutScale float64, timeoutFloor time.Duration) *Assembler {
	return &Assembler{
		runner:       runner,
		prober:       prober,
		TimeoutScale: timeoutScale,
		TimeoutFloor: timeoutFloor,
	}
}

// Assemble concatenates clips in input order (which must match the timing
// plan order), muxes the narration underneath, and trims or pads the result
// to exactly totalSeconds.
func (a *Assembler) Assemble(ctx context.Context, clips []string, narrationPath, outputPath string, totalSeconds float64, quality models.QualityTier) (*Result, error) {
	if len(clips) == 0 {
		return nil, ErrEmptyInput
	}
	if _, err := os.Stat(narrationPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingAudio, narrationPath)
	}

	listPath, err := writeConcatManifest(filepath.Dir(outputPath), clips)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}
	defer os.Remove(listPath)

	log.Printf("[Assembler] Muxing %d clips against %s (target %.2fs)", len(clips), filepath.Base(narrationPath), totalSeconds)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-i", narrationPath,
		// Clone the last frame if video runs out before the narration does.
		"-filter_complex", fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%d[v]", underrunPadSeconds),
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-preset", presetFor(quality),
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.3f", totalSeconds),
		"-y",
		outputPath,
	}

	if err := a.runner.Run(ctx, a.timeoutFor(totalSeconds), args...); err != nil {
		if errors.Is(err, media.ErrTimeout) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	return a.verify(ctx, outputPath, totalSeconds)
}

// verify re-probes the encoded output. A truncated or corrupt file is
// indistinguishable from success at the exit-code level alone.
func (a *Assembler) verify(ctx context.Context, outputPath string, totalSeconds float64) (*Result, error) {
	stat, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: output missing after encode: %v", ErrAssembly, err)
	}
	if stat.Size() < minPlausibleBytes {
		return nil, fmt.Errorf("%w: output implausibly small (%d bytes)", ErrAssembly, stat.Size())
	}

	info, err := a.prober.Probe(ctx, outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: output not probeable: %v", ErrAssembly, err)
	}

	if drift := math.Abs(info.DurationSeconds - totalSeconds); drift > durationTolerance {
		return nil, fmt.Errorf("%w: output duration %.2fs deviates %.2fs from target %.2fs",
			ErrAssembly, info.DurationSeconds, drift, totalSeconds)
	}

	return &Result{
		FileSizeBytes:   stat.Size(),
		DurationSeconds: info.DurationSeconds,
	}, nil
}

// writeConcatManifest writes the ffmpeg concat-demuxer list. Order is
// load-bearing: it must exactly match the timing plan.
func writeConcatManifest(dir string, clips []string) (string, error) {
	listPath := filepath.Join(dir, "concat_list.txt")
	f, err := os.Create(listPath)
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}
	defer f.Close()

	for _, path := range clips {
		// Single quotes in paths break the concat format's quoting
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			return "", fmt.Errorf("failed to write concat list: %w", err)
		}
	}

	return listPath, nil
}

func (a *Assembler) timeoutFor(totalSeconds float64) time.Duration {
	t := time.Duration(totalSeconds * a.TimeoutScale * float64(time.Second))
	if t < a.TimeoutFloor {
		t = a.TimeoutFloor
	}
	return t
}

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

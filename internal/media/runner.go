package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout marks an external encode/probe invocation that exceeded its
// wall-clock budget and was forcibly terminated.
var ErrTimeout = errors.New("external process timed out")

// Runner executes ffmpeg/ffprobe invocations with a hard wall-clock timeout.
// Every external call in the pipeline goes through here so no job can block
// indefinitely on a wedged encoder process.
type Runner struct {
	FFmpegPath  string
	FFprobePath string
}

func NewRunner() *Runner {
	return &Runner{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}

// Run executes ffmpeg with the given args, killing the process when the
// timeout elapses. The stderr tail is included in the returned error because
// ffmpeg reports the actual failure reason there, not in the exit code.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) error {
	return r.run(ctx, r.FFmpegPath, timeout, args...)
}

// RunProbe executes ffprobe and returns its stdout.
func (r *Runner) RunProbe(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.FFprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ffprobe after %v: %w", timeout, ErrTimeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, stderrTail(&stderr))
	}

	return stdout.Bytes(), nil
}

func (r *Runner) run(ctx context.Context, bin string, timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Distinguish our deadline from caller cancellation: both kill the
		// child, but only the former is a timeout.
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s after %v: %w", bin, timeout, ErrTimeout)
		}
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("%s interrupted: %w", bin, context.Canceled)
		}
		return fmt.Errorf("%s failed: %w: %s", bin, err, stderrTail(&stderr))
	}

	return nil
}

// stderrTail returns the last few lines of stderr, which is where ffmpeg
// puts the human-readable failure reason.
func stderrTail(buf *bytes.Buffer) string {
	const maxLines = 5
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, " | ")
}

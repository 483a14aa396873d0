package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrProbe marks any failure to inspect a media file: missing, unreadable,
// or not decodable by the encoding backend.
var ErrProbe = errors.New("probe failed")

const probeTimeout = 30 * time.Second

// Info is the metadata the pipeline needs from a media file.
type Info struct {
	DurationSeconds float64
	HasAudio        bool
	HasVideo        bool
}

// Prober inspects audio and video files via ffprobe.
type Prober struct {
	runner *Runner
}

func NewProber(runner *Runner) *Prober {
	return &Prober{runner: runner}
}

// ffprobe JSON output shapes — only the fields we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// Probe returns duration and stream layout for the file at path.
// Corrupt files often report a zero duration; that is treated as a probe
// failure here rather than letting a zero poison downstream timing math.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrProbe, path, err)
	}

	out, err := p.runner.RunProbe(ctx, probeTimeout,
		"-v", "error",
		"-show_entries", "format=duration",
		"-show_entries", "stream=codec_type",
		"-print_format", "json",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrProbe, path, err)
	}

	info, err := parseProbeOutput(out)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrProbe, path, err)
	}

	return info, nil
}

func parseProbeOutput(data []byte) (Info, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("unparseable ffprobe output: %v", err)
	}

	duration, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil {
		return Info{}, fmt.Errorf("missing or malformed duration %q", raw.Format.Duration)
	}
	if duration <= 0 {
		return Info{}, fmt.Errorf("non-positive duration %.3f (corrupt file?)", duration)
	}

	info := Info{DurationSeconds: duration}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			info.HasVideo = true
		}
	}

	return info, nil
}

package media

import (
	"context"
	"errors"
	"testing"
)

func TestParseProbeOutput(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"codec_type": "video"},
			{"codec_type": "audio"}
		],
		"format": {"duration": "63.412000"}
	}`)

	info, err := parseProbeOutput(raw)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if info.DurationSeconds != 63.412 {
		t.Errorf("duration = %f, want 63.412", info.DurationSeconds)
	}
	if !info.HasAudio || !info.HasVideo {
		t.Errorf("streams = audio:%v video:%v, want both true", info.HasAudio, info.HasVideo)
	}
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	raw := []byte(`{
		"streams": [{"codec_type": "audio"}],
		"format": {"duration": "12.5"}
	}`)

	info, err := parseProbeOutput(raw)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if info.HasVideo {
		t.Error("expected HasVideo=false for audio-only file")
	}
	if !info.HasAudio {
		t.Error("expected HasAudio=true")
	}
}

func TestParseProbeOutputZeroDuration(t *testing.T) {
	// Corrupt files often report duration 0 — that must be a failure,
	// never a zero handed to the timing allocator.
	raw := []byte(`{"streams": [{"codec_type": "video"}], "format": {"duration": "0.000000"}}`)

	if _, err := parseProbeOutput(raw); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestParseProbeOutputMissingDuration(t *testing.T) {
	raw := []byte(`{"streams": [], "format": {}}`)

	if _, err := parseProbeOutput(raw); err == nil {
		t.Fatal("expected error for missing duration")
	}
}

func TestProbeMissingFile(t *testing.T) {
	p := NewProber(NewRunner())

	_, err := p.Probe(context.Background(), "/nonexistent/narration.mp3")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, ErrProbe) {
		t.Errorf("error = %v, want ErrProbe", err)
	}
}

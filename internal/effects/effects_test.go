package effects

import (
	"strings"
	"testing"
	"time"

	"github.com/storyreel/backend/internal/media"
	"github.com/storyreel/backend/internal/models"
)

func TestPatternForSceneCycles(t *testing.T) {
	n := len(patternCycle)

	for i := 0; i < n*3; i++ {
		got := PatternForScene(i)
		want := patternCycle[i%n]
		if got != want {
			t.Errorf("PatternForScene(%d) = %s, want %s", i, got, want)
		}
	}

	// Consecutive scenes must differ.
	for i := 0; i < n*2; i++ {
		if PatternForScene(i) == PatternForScene(i+1) {
			t.Errorf("scenes %d and %d share pattern %s", i, i+1, PatternForScene(i))
		}
	}
}

func TestPatternForSceneDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		if PatternForScene(i) != PatternForScene(i) {
			t.Fatalf("pattern for scene %d is not stable", i)
		}
	}
}

func TestPatternForSceneNegativeIndex(t *testing.T) {
	if got := PatternForScene(-1); got != patternCycle[0] {
		t.Errorf("PatternForScene(-1) = %s, want %s", got, patternCycle[0])
	}
}

func TestBuildFilterContainsZoompan(t *testing.T) {
	for _, pattern := range patternCycle {
		vf := BuildFilter(pattern, models.MotionStandard, 8, 1080, 1920, 30)

		if !strings.Contains(vf, "zoompan=") {
			t.Errorf("pattern %s: filter missing zoompan: %s", pattern, vf)
		}
		if !strings.Contains(vf, "s=1080x1920") {
			t.Errorf("pattern %s: filter missing output size: %s", pattern, vf)
		}
		// Padding stage guarantees trajectory headroom.
		if !strings.Contains(vf, "scale=1620:2880") {
			t.Errorf("pattern %s: filter missing pad scale: %s", pattern, vf)
		}
	}
}

func TestBuildFilterMinimumFrames(t *testing.T) {
	// Sub-second scenes still get a full second of motion frames.
	vf := BuildFilter(PatternZoomIn, models.MotionStandard, 0.2, 1080, 1920, 30)

	if !strings.Contains(vf, "d=30") {
		t.Errorf("expected d=30 frame floor, got: %s", vf)
	}
}

func TestBuildFilterIntensity(t *testing.T) {
	subtle := BuildFilter(PatternZoomIn, models.MotionSubtle, 10, 1080, 1920, 30)
	dramatic := BuildFilter(PatternZoomIn, models.MotionDramatic, 10, 1080, 1920, 30)

	if subtle == dramatic {
		t.Error("motion intensity has no effect on the filter")
	}
	if !strings.Contains(subtle, "0.150") {
		t.Errorf("subtle zoom range not halved: %s", subtle)
	}
	if !strings.Contains(dramatic, "0.420") {
		t.Errorf("dramatic zoom range not scaled: %s", dramatic)
	}
}

func TestTimeoutForScalesWithDuration(t *testing.T) {
	s := NewSynthesizer(media.NewRunner(), 10, 2*time.Minute)

	if got := s.timeoutFor(30); got != 300*time.Second {
		t.Errorf("timeoutFor(30) = %v, want 5m", got)
	}
	// Short clips are floored so startup overhead never trips the deadline.
	if got := s.timeoutFor(1); got != 2*time.Minute {
		t.Errorf("timeoutFor(1) = %v, want floor 2m", got)
	}
}

// Package timing computes per-scene screen time for a render: given the
// scenes' word counts and the probed narration duration, it produces a
// contiguous plan of start/duration pairs covering the full narration.
package timing

import (
	"errors"
	"fmt"
	"math"

	"github.com/storyreel/backend/internal/models"
)

// ErrNoScenes is returned when allocation is requested for an empty scene list.
var ErrNoScenes = errors.New("no scenes to allocate")

// Allocator distributes a target duration across scenes proportionally to
// their dialogue length, clamped to configured per-scene bounds.
type Allocator struct {
	MinSceneSeconds float64
	MaxSceneSeconds float64
}

func NewAllocator(minSeconds, maxSeconds float64) *Allocator {
	return &Allocator{
		MinSceneSeconds: minSeconds,
		MaxSceneSeconds: maxSeconds,
	}
}

// Allocate computes a timing plan for the given scenes. The relationship
// between dialogue length and screen time is sub-linear (sqrt of word count)
// so a single very long scene does not starve the rest.
//
// Durations are clamped to [MinSceneSeconds, MaxSceneSeconds], the clamp
// adjustment is redistributed in a single pass, and the result is normalized
// so the plan total exactly matches targetSeconds. The final normalization
// can push a clamped scene marginally outside its bound under extreme weight
// skew; covering the whole narration wins over the per-scene bound there.
func (a *Allocator) Allocate(scenes []models.SceneInput, targetSeconds float64) (models.TimingPlan, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	if targetSeconds <= 0 {
		return nil, fmt.Errorf("target duration must be positive, got %.3f", targetSeconds)
	}
	for i := 1; i < len(scenes); i++ {
		if scenes[i].SceneNumber <= scenes[i-1].SceneNumber {
			return nil, fmt.Errorf("scene numbers must be strictly increasing: %d after %d",
				scenes[i].SceneNumber, scenes[i-1].SceneNumber)
		}
	}

	// Weight per scene: max(1, sqrt(wordCount)). A scene with no extractable
	// text still gets the floor weight of 1 rather than being dropped.
	weights := make([]float64, len(scenes))
	var weightSum float64
	for i, s := range scenes {
		w := math.Sqrt(float64(s.WordCount))
		if w < 1 {
			w = 1
		}
		weights[i] = w
		weightSum += w
	}

	// Initial proportional split.
	durations := make([]float64, len(scenes))
	for i := range scenes {
		durations[i] = weights[i] / weightSum * targetSeconds
	}

	// Clamp and accumulate the net adjustment the clamping introduced.
	var adjustment float64
	for i := range durations {
		clamped := a.clamp(durations[i])
		adjustment += clamped - durations[i]
		durations[i] = clamped
	}

	// Single redistribution pass: scale everything by the inverse of the
	// adjustment's share of the target, then re-clamp. This is a heuristic,
	// not a fixed-point solver; the normalization below absorbs the residue.
	if adjustment != 0 {
		scale := 1 - adjustment/targetSeconds
		for i := range durations {
			durations[i] = a.clamp(durations[i] * scale)
		}
	}

	// Normalize so the total is exactly the target.
	var total float64
	for _, d := range durations {
		total += d
	}
	if total > 0 {
		factor := targetSeconds / total
		for i := range durations {
			durations[i] *= factor
		}
	}

	// Contiguous starts in scene order; the last scene absorbs any rounding
	// residue so no audio tail is ever left without a visible scene.
	plan := make(models.TimingPlan, len(scenes))
	var cursor float64
	for i, s := range scenes {
		plan[i] = models.SceneTiming{
			SceneNumber:     s.SceneNumber,
			StartSeconds:    cursor,
			DurationSeconds: durations[i],
		}
		cursor += durations[i]
	}
	last := &plan[len(plan)-1]
	last.DurationSeconds = targetSeconds - last.StartSeconds

	return plan, nil
}

func (a *Allocator) clamp(d float64) float64 {
	if d < a.MinSceneSeconds {
		return a.MinSceneSeconds
	}
	if d > a.MaxSceneSeconds {
		return a.MaxSceneSeconds
	}
	return d
}

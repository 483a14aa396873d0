package timing

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/storyreel/backend/internal/models"
)

func scenes(wordCounts ...int) []models.SceneInput {
	out := make([]models.SceneInput, len(wordCounts))
	for i, wc := range wordCounts {
		out[i] = models.SceneInput{SceneNumber: i + 1, ImagePath: "scene.png", WordCount: wc}
	}
	return out
}

func TestAllocateProportional(t *testing.T) {
	// Word counts 10/40/10 give exact 1:2:1 weights (sqrt(40) = 2*sqrt(10)),
	// so a 60s narration splits into 15/30/15 with no clamping in play.
	a := NewAllocator(3, 30)

	plan, err := a.Allocate(scenes(10, 40, 10), 60)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	want := models.TimingPlan{
		{SceneNumber: 1, StartSeconds: 0, DurationSeconds: 15},
		{SceneNumber: 2, StartSeconds: 15, DurationSeconds: 30},
		{SceneNumber: 3, StartSeconds: 45, DurationSeconds: 15},
	}

	for i := range want {
		if plan[i].SceneNumber != want[i].SceneNumber {
			t.Errorf("scene %d: number = %d, want %d", i, plan[i].SceneNumber, want[i].SceneNumber)
		}
		if math.Abs(plan[i].StartSeconds-want[i].StartSeconds) > 0.01 {
			t.Errorf("scene %d: start = %f, want %f", i, plan[i].StartSeconds, want[i].StartSeconds)
		}
		if math.Abs(plan[i].DurationSeconds-want[i].DurationSeconds) > 0.01 {
			t.Errorf("scene %d: duration = %f, want %f", i, plan[i].DurationSeconds, want[i].DurationSeconds)
		}
	}
}

func TestAllocateSingleScene(t *testing.T) {
	a := NewAllocator(3, 20)

	plan, err := a.Allocate(scenes(25), 10)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if len(plan) != 1 {
		t.Fatalf("plan length = %d, want 1", len(plan))
	}
	if plan[0].StartSeconds != 0 || plan[0].DurationSeconds != 10 {
		t.Errorf("plan = (%f, %f), want (0, 10)", plan[0].StartSeconds, plan[0].DurationSeconds)
	}
}

func TestAllocateEmpty(t *testing.T) {
	a := NewAllocator(3, 20)

	_, err := a.Allocate(nil, 60)
	if !errors.Is(err, ErrNoScenes) {
		t.Fatalf("error = %v, want ErrNoScenes", err)
	}
}

func TestAllocateTotalAndLastEnd(t *testing.T) {
	a := NewAllocator(3, 20)

	cases := []struct {
		name   string
		counts []int
		target float64
	}{
		{"even", []int{20, 20, 20, 20}, 48},
		{"skewed", []int{2, 150, 8}, 45},
		{"many short", []int{5, 5, 5, 5, 5, 5, 5, 5}, 90},
		{"zero words", []int{0, 30, 0}, 30},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			plan, err := a.Allocate(scenes(c.counts...), c.target)
			if err != nil {
				t.Fatalf("Allocate failed: %v", err)
			}

			if got := plan.TotalSeconds(); math.Abs(got-c.target) > 0.01 {
				t.Errorf("total = %f, want %f", got, c.target)
			}

			last := plan[len(plan)-1]
			if last.EndSeconds() != c.target {
				t.Errorf("last end = %f, want exactly %f", last.EndSeconds(), c.target)
			}

			// Contiguity: each scene starts where the previous one ended.
			for i := 1; i < len(plan); i++ {
				if math.Abs(plan[i].StartSeconds-plan[i-1].EndSeconds()) > 1e-9 {
					t.Errorf("scene %d start %f != previous end %f",
						i, plan[i].StartSeconds, plan[i-1].EndSeconds())
				}
			}
		})
	}
}

func TestAllocateRespectsMinBound(t *testing.T) {
	// Common case: moderate skew, min bound holds for every scene.
	a := NewAllocator(3, 20)

	plan, err := a.Allocate(scenes(1, 60, 50, 2), 40)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	for _, s := range plan {
		if s.DurationSeconds < a.MinSceneSeconds-0.01 {
			t.Errorf("scene %d duration %f below min %f", s.SceneNumber, s.DurationSeconds, a.MinSceneSeconds)
		}
	}
}

func TestAllocatePreservesOrder(t *testing.T) {
	a := NewAllocator(3, 20)
	input := scenes(12, 3, 44, 7, 19)

	plan, err := a.Allocate(input, 55)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	for i := range input {
		if plan[i].SceneNumber != input[i].SceneNumber {
			t.Errorf("position %d: scene %d, want %d", i, plan[i].SceneNumber, input[i].SceneNumber)
		}
	}
}

func TestAllocateIdempotent(t *testing.T) {
	a := NewAllocator(3, 20)
	input := scenes(9, 31, 17, 4)

	first, err := a.Allocate(input, 70)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	second, err := a.Allocate(input, 70)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("allocation is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestAllocateRejectsUnorderedScenes(t *testing.T) {
	a := NewAllocator(3, 20)
	input := []models.SceneInput{
		{SceneNumber: 2, WordCount: 10},
		{SceneNumber: 1, WordCount: 10},
	}

	if _, err := a.Allocate(input, 20); err == nil {
		t.Fatal("expected error for non-increasing scene numbers")
	}
}

func TestAllocateRejectsNonPositiveTarget(t *testing.T) {
	a := NewAllocator(3, 20)

	if _, err := a.Allocate(scenes(10), 0); err == nil {
		t.Fatal("expected error for zero target duration")
	}
}

func TestAllocateClampRedistribution(t *testing.T) {
	// One dominant scene hits the max bound; the freed time flows to the
	// others and the total still lands exactly on target.
	a := NewAllocator(3, 20)

	plan, err := a.Allocate(scenes(10, 400, 10), 60)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if got := plan.TotalSeconds(); math.Abs(got-60) > 0.01 {
		t.Errorf("total = %f, want 60", got)
	}

	// Initial unclamped share of an outer scene is sqrt(10)/(2*sqrt(10)+20)*60
	// ≈ 7.2s; redistribution of the dominant scene's clamped excess must have
	// grown it past that.
	if plan[0].DurationSeconds <= 7.3 {
		t.Errorf("outer scene duration = %f, expected growth past 7.3 from redistribution", plan[0].DurationSeconds)
	}
	if plan[0].DurationSeconds < a.MinSceneSeconds {
		t.Errorf("outer scene %f below min", plan[0].DurationSeconds)
	}
}

package effects

import (
	"fmt"

	"github.com/storyreel/backend/internal/models"
)

// MotionPattern identifies the pan/zoom trajectory applied to a still image.
type MotionPattern string

const (
	PatternZoomIn     MotionPattern = "zoom_in"      // Push toward center
	PatternPanRight   MotionPattern = "pan_right"    // Drifts left to right
	PatternPanLeft    MotionPattern = "pan_left"     // Drifts right to left
	PatternGentleZoom MotionPattern = "gentle_zoom"  // Starts zoomed, pulls back wide
)

// patternCycle is the fixed rotation consecutive scenes walk through so
// adjacent clips visibly differ without per-scene authoring.
var patternCycle = []MotionPattern{
	PatternZoomIn,
	PatternPanRight,
	PatternGentleZoom,
	PatternPanLeft,
}

// PatternForScene returns the deterministic pattern for a scene position.
// Same index, same pattern — renders are reproducible.
func PatternForScene(sceneIndex int) MotionPattern {
	if sceneIndex < 0 {
		sceneIndex = 0
	}
	return patternCycle[sceneIndex%len(patternCycle)]
}

// Trajectory bounds. These are constants rather than per-image computations:
// the input is always padded to padFactor beyond the output frame first, so
// no pattern can sample outside the image regardless of source resolution
// or aspect ratio.
const (
	padFactor = 1.5 // Input scaled to at least 1.5x the output frame

	baseZoomRange   = 0.30 // zoom_in travels 1.0 -> 1.3 at standard intensity
	gentleZoomRange = 0.15 // gentle_zoom travels 1.15 -> 1.0
	panZoomLevel    = 1.25 // Fixed crop level while panning
)

// intensityScale maps the motion-intensity tier to a multiplier on the zoom
// travel. Pan distance is expressed relative to the crop window, so it stays
// in bounds at any scale.
func intensityScale(m models.MotionIntensity) float64 {
	switch m {
	case models.MotionSubtle:
		return 0.5
	case models.MotionDramatic:
		return 1.4
	default:
		return 1.0
	}
}

// BuildFilter constructs the ffmpeg -vf chain for one clip: pad the image to
// guaranteed headroom, then apply the zoompan trajectory over totalFrames.
//
// Center expressions (reused below):
//   cx = "iw/2-(iw/zoom/2)"  — horizontally centered
//   cy = "ih/2-(ih/zoom/2)"  — vertically centered
// Pan range "iw-iw/zoom" / "ih-ih/zoom" is the exact in-bounds travel for a
// given zoom, so the trajectories cannot escape the padded image.
func BuildFilter(pattern MotionPattern, intensity models.MotionIntensity, durationSeconds float64, width, height, fps int) string {
	totalFrames := int(durationSeconds * float64(fps))
	if totalFrames < fps {
		totalFrames = fps // minimum 1 second of motion
	}

	scale := intensityScale(intensity)
	zoomRange := baseZoomRange * scale
	gentleRange := gentleZoomRange * scale

	var zExpr, xExpr, yExpr string

	switch pattern {
	case PatternZoomIn:
		zExpr = fmt.Sprintf("1.0+%.3f*on/%d", zoomRange, totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case PatternGentleZoom:
		zExpr = fmt.Sprintf("%.3f-%.3f*on/%d", 1+gentleRange, gentleRange, totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case PatternPanRight:
		zExpr = fmt.Sprintf("%.3f", panZoomLevel)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case PatternPanLeft:
		zExpr = fmt.Sprintf("%.3f", panZoomLevel)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	default:
		zExpr = fmt.Sprintf("1.0+%.3f*on/%d", zoomRange, totalFrames)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	}

	// Pad first so zoompan always has headroom, whatever the source size.
	padded := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		int(float64(width)*padFactor), int(float64(height)*padFactor),
		int(float64(width)*padFactor), int(float64(height)*padFactor),
	)

	zoompan := fmt.Sprintf(
		"zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zExpr, xExpr, yExpr,
		totalFrames,
		width, height,
		fps,
	)

	return padded + "," + zoompan
}

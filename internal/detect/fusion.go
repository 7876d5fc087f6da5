package detect

import (
	"trustd/internal/features"
	"trustd/internal/pattern"
)

// Base fusion weights. When the pattern tier has no centroids its weight is
// zeroed and the remainder renormalizes to sum to 1.
const (
	weightHeuristic  = 0.40
	weightRhythm     = 0.25
	weightPattern    = 0.20
	weightCalibrated = 0.15
)

// Decision bands on the combined score. The uncertain band overlaps the
// confident bands and is configured independently.
const (
	ConfidentAIMin    = 0.8
	ConfidentHumanMax = 0.35
	UncertainLow      = 0.40
	UncertainHigh     = 0.65

	// AIThreshold is the isAI cutoff on a fused confidence.
	AIThreshold = 0.6
)

// Fusion is the weighted combination of the tier scores.
type Fusion struct {
	Combined float64
	// Weights after renormalization, keyed like SourceScores.
	Weights map[string]float64
	// Sources holds the per-tier inputs that entered the blend. The
	// pattern key is absent when no centroids were available.
	Sources map[string]float64
}

// Fuse blends the heuristic, rhythm, pattern, and calibrated scores into a
// single combined confidence. The calibrated prior is clamped to [0, 1];
// callers pass 0.5 when no prior exists. When the pattern match is absent
// its weight is zero and 0.5 is substituted for its value so the product
// stays finite.
func Fuse(h, r TierResult, p pattern.Match, calibrated float64) Fusion {
	calibrated = features.Clamp01(calibrated)

	wH, wR, wC := weightHeuristic, weightRhythm, weightCalibrated
	wP := 0.0
	pScore := 0.5
	if p.Matched {
		wP = weightPattern
		pScore = p.Confidence
	}

	sum := wH + wR + wP + wC
	if sum == 0 {
		sum = 1
	}
	wH /= sum
	wR /= sum
	wP /= sum
	wC /= sum

	combined := features.Clamp01(
		h.Confidence*wH + r.Confidence*wR + pScore*wP + calibrated*wC,
	)

	sources := map[string]float64{
		"heuristics": h.Confidence,
		"rhythm":     r.Confidence,
		"calibrated": calibrated,
	}
	if p.Matched {
		sources["pattern"] = p.Confidence
	}

	return Fusion{
		Combined: combined,
		Weights: map[string]float64{
			"heuristics": wH,
			"rhythm":     wR,
			"pattern":    wP,
			"calibrated": wC,
		},
		Sources: sources,
	}
}

// NormalizeCalibrated maps an externally supplied prior onto [0, 1]. The
// effort endpoint reports on a 0-100 scale while extension payloads already
// use [0, 1]; values in (1, 100] are treated as percentages and anything
// outside both ranges clamps.
func NormalizeCalibrated(v float64) float64 {
	if v > 1 && v <= 100 {
		return v / 100
	}
	return features.Clamp01(v)
}

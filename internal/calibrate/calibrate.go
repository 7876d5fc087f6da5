// Package calibrate maintains a running calibration of the lightweight
// client-side heuristic score. Raw scores drift with the mix of platforms
// a device sees, so the calibrator tracks an exponential moving estimate
// of their center and spread and maps each raw score through a sigmoid
// centered on that estimate.
package calibrate

import (
	"math"
	"math/rand"
	"sync"

	"trustd/internal/features"
)

// Defaults for the running estimate.
const (
	DefaultMu    = 0.55
	DefaultSigma = 0.18
	// Alpha is the EMA learning rate for mu and sigma.
	Alpha = 0.02
	// SigmaFloor prevents the sigmoid from collapsing to a step function
	// when the observed spread gets very small.
	SigmaFloor = 0.08
	// Slope scales the sigmoid steepness.
	Slope = 0.9
	// JitterSpan is the width of the uniform noise added to each
	// calibrated score, so identical texts do not produce byte-identical
	// scores across devices.
	JitterSpan = 0.03
)

// State is a thread-safe running calibration. The zero value is not
// usable; construct with New.
type State struct {
	mu sync.Mutex

	center float64
	spread float64

	// jitter returns a value in [-JitterSpan/2, JitterSpan/2].
	jitter func() float64
}

// New returns a State seeded with the default center and spread.
func New() *State {
	return &State{
		center: DefaultMu,
		spread: DefaultSigma,
		jitter: func() float64 { return (rand.Float64() - 0.5) * JitterSpan },
	}
}

// NewWithJitter returns a State using the supplied jitter source.
// A nil jitter disables noise entirely.
func NewWithJitter(jitter func() float64) *State {
	s := New()
	if jitter == nil {
		jitter = func() float64 { return 0 }
	}
	s.jitter = jitter
	return s
}

// Snapshot returns the current center and spread.
func (s *State) Snapshot() (mu, sigma float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center, s.spread
}

// Observe folds a raw score into the running estimate. The spread is a
// running standard deviation: an EMA over squared deviations from the
// updated center, floored so it never collapses.
func (s *State) Observe(raw float64) {
	raw = features.Clamp01(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.center = (1-Alpha)*s.center + Alpha*raw
	dev := raw - s.center
	variance := (1-Alpha)*s.spread*s.spread + Alpha*dev*dev
	s.spread = math.Max(SigmaFloor, math.Sqrt(variance))
}

// Calibrate maps a raw score through the sigmoid defined by the current
// estimate and adds a small jitter. The result is clamped to [0, 1].
func (s *State) Calibrate(raw float64) float64 {
	raw = features.Clamp01(raw)

	s.mu.Lock()
	center := s.center
	spread := s.spread
	noise := s.jitter()
	s.mu.Unlock()

	if spread < SigmaFloor {
		spread = SigmaFloor
	}

	z := (raw - center) / spread * Slope
	calibrated := 1.0/(1.0+math.Exp(-z)) + noise
	return features.Clamp01(calibrated)
}

// ObserveAndCalibrate updates the estimate with raw and returns its
// calibrated value in one step.
func (s *State) ObserveAndCalibrate(raw float64) float64 {
	s.Observe(raw)
	return s.Calibrate(raw)
}

// RawScore reproduces the cheap surface-feature score computed on the
// capture side. It stays deliberately crude: the point is a stable,
// monotone signal for the calibrator, not a verdict.
func RawScore(text string, c features.Counts) float64 {
	if len(text) == 0 {
		return 0.5
	}

	score := 0.4
	score += math.Min(float64(c.Length)/2000.0, 0.3)
	score += math.Min(float64(c.Punctuation)/10.0, 0.1)
	score -= math.Min(float64(c.Emojis)/6.0, 0.10)
	score -= math.Min(float64(c.URLs)*0.04, 0.12)
	score -= math.Min(float64(c.Caps)/20.0, 0.1)
	score += math.Min(float64(c.Digits)/100.0, 0.05)

	// Long, punctuated prose never scores low, whatever the other
	// counters say.
	if c.Length > 80 && c.Punctuation >= 1 {
		score = math.Max(score, 0.62)
	}

	return features.Clamp01(score)
}

// Score computes the raw surface score for text and runs it through the
// calibration in one call.
func (s *State) Score(text string) float64 {
	counts := features.Count(text)
	return s.ObserveAndCalibrate(RawScore(text, counts))
}

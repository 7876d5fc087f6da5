package detect

import (
	"math"
	"testing"

	"trustd/internal/pattern"
)

func TestFuseAllTiers(t *testing.T) {
	h := TierResult{Confidence: 0.8}
	r := TierResult{Confidence: 0.4}
	p := pattern.Match{Matched: true, Confidence: 0.6}

	f := Fuse(h, r, p, 0.6)

	// 0.8*0.40 + 0.4*0.25 + 0.6*0.20 + 0.6*0.15
	want := 0.63
	if math.Abs(f.Combined-want) > 1e-9 {
		t.Errorf("combined = %v, want %v", f.Combined, want)
	}
	if _, ok := f.Sources["pattern"]; !ok {
		t.Error("pattern source missing despite a matched pattern tier")
	}
}

func TestFuseWithoutPatternRenormalizes(t *testing.T) {
	h := TierResult{Confidence: 0.8}
	r := TierResult{Confidence: 0.4}
	p := pattern.Match{Matched: false}

	f := Fuse(h, r, p, 0.6)

	// Remaining weights 0.40/0.25/0.15 renormalize over 0.80.
	want := 0.8*0.5 + 0.4*0.3125 + 0.6*0.1875
	if math.Abs(f.Combined-want) > 1e-9 {
		t.Errorf("combined = %v, want %v", f.Combined, want)
	}

	wSum := 0.0
	for _, w := range f.Weights {
		wSum += w
	}
	if math.Abs(wSum-1) > 1e-9 {
		t.Errorf("weights sum = %v, want 1", wSum)
	}
	if f.Weights["pattern"] != 0 {
		t.Errorf("pattern weight = %v, want 0", f.Weights["pattern"])
	}
	if _, ok := f.Sources["pattern"]; ok {
		t.Error("pattern source recorded with no centroids available")
	}
}

func TestFuseClampsCalibrated(t *testing.T) {
	f := Fuse(TierResult{}, TierResult{}, pattern.Match{}, 3.7)
	if f.Sources["calibrated"] != 1 {
		t.Errorf("calibrated = %v, want clamped to 1", f.Sources["calibrated"])
	}
	if f.Combined < 0 || f.Combined > 1 {
		t.Errorf("combined out of range: %v", f.Combined)
	}
}

func TestFuseExtremesStayFinite(t *testing.T) {
	f := Fuse(TierResult{Confidence: 1}, TierResult{Confidence: 1}, pattern.Match{Matched: true, Confidence: 1}, 1)
	if f.Combined != 1 {
		t.Errorf("all-max combined = %v, want 1", f.Combined)
	}
	f = Fuse(TierResult{}, TierResult{}, pattern.Match{}, 0)
	if f.Combined != 0 {
		t.Errorf("all-zero combined = %v, want 0", f.Combined)
	}
}

func TestNormalizeCalibrated(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{1, 1},
		{0, 0},
		{75, 0.75},
		{100, 1},
		{-2, 0},
		{250, 1},
	}
	for _, tc := range cases {
		if got := NormalizeCalibrated(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("NormalizeCalibrated(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// Package pattern compares text feature vectors against the persisted
// per-platform cluster centroids maintained by the nightly ingestor.
//
// The matcher is strictly read-only: centroids are owned by the ingestor and
// this package never mutates them.
package pattern

import (
	"fmt"
	"math"
	"sort"
	"time"

	"trustd/internal/features"
)

// ClusterType identifies which population a centroid summarizes.
type ClusterType string

const (
	ClusterHuman ClusterType = "human"
	ClusterAI    ClusterType = "ai"
	ClusterMixed ClusterType = "mixed"
)

// ClusterTypes lists all cluster types in comparison order.
var ClusterTypes = []ClusterType{ClusterHuman, ClusterAI, ClusterMixed}

// LabelNoPattern is the sentinel label returned when a platform has no
// centroids yet.
const LabelNoPattern = "no_pattern"

// StyleSignature holds the descriptive writing-style statistics recomputed
// alongside each centroid.
type StyleSignature struct {
	FunctionWords   []string `json:"functionWords"`
	TransitionWords []string `json:"transitionWords"`
	SemanticDensity float64  `json:"semanticDensity"`
	CoherenceScore  float64  `json:"coherenceScore"`
	Repetitiveness  float64  `json:"repetitiveness"`
}

// Centroid is the average feature vector for one (platform, cluster type)
// pair. LengthStd is persisted for the ingestor's running statistics but is
// not part of the similarity comparison.
type Centroid struct {
	features.Vector
	LengthStd float64 `json:"lengthStd"`
}

// Cluster is one persisted pattern record.
type Cluster struct {
	Platform    string
	Type        ClusterType
	Centroid    Centroid
	Signature   StyleSignature
	SampleCount int64
	UpdatedAt   time.Time
}

// ClusterSet holds the up-to-three centroids known for one platform.
type ClusterSet map[ClusterType]*Centroid

// Match is the matcher's verdict for one feature vector.
//
// When Matched is false no centroids were available: Label is
// LabelNoPattern, Confidence is meaningless and score fusion must drop the
// pattern weight entirely.
type Match struct {
	Matched    bool
	IsAI       bool
	Confidence float64
	Label      string
	Markers    []string
}

// Compare derives an AI probability from the cosine similarity between a
// feature vector and each available centroid. The similarities are
// normalized into pseudo-probabilities; the AI probability is the mass on
// the ai cluster plus half the mass on mixed.
func Compare(clusters ClusterSet, fv features.Vector) Match {
	sims := make(map[ClusterType]float64, len(ClusterTypes))
	total := 0.0
	for _, ct := range ClusterTypes {
		c := clusters[ct]
		if c == nil {
			continue
		}
		s := Cosine(fv, c.Vector)
		sims[ct] = s
		total += s
	}

	if len(sims) == 0 {
		return Match{
			Matched: false,
			Label:   LabelNoPattern,
			Markers: []string{"pattern:no_clusters"},
		}
	}

	if total == 0 {
		total = 1
	}

	probs := make(map[ClusterType]float64, len(sims))
	for ct, s := range sims {
		probs[ct] = s / total
	}

	aiProb := features.Clamp01(probs[ClusterAI] + 0.5*probs[ClusterMixed])

	label := "unknown"
	maxVal := math.Inf(-1)
	for _, ct := range ClusterTypes {
		if v, ok := probs[ct]; ok && v > maxVal {
			maxVal = v
			label = string(ct)
		}
	}

	markers := []string{
		fmt.Sprintf("pattern_aiProb:%.2f", aiProb),
		fmt.Sprintf("pattern_label:%s", label),
	}
	types := make([]ClusterType, 0, len(probs))
	for ct := range probs {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, ct := range types {
		markers = append(markers, fmt.Sprintf("pattern_%s:%.2f", ct, probs[ct]))
	}

	return Match{
		Matched:    true,
		IsAI:       aiProb >= 0.6,
		Confidence: aiProb,
		Label:      label,
		Markers:    markers,
	}
}

// Cosine computes cosine similarity over the eight shared feature fields,
// clamped to [0, 1]. A zero vector on either side yields 0, never NaN.
func Cosine(a, b features.Vector) float64 {
	av := components(a)
	bv := components(b)

	dot, magA, magB := 0.0, 0.0, 0.0
	for i := range av {
		dot += av[i] * bv[i]
		magA += av[i] * av[i]
		magB += bv[i] * bv[i]
	}

	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA == 0 || magB == 0 {
		return 0
	}
	return features.Clamp01(dot / (magA * magB))
}

func components(v features.Vector) [8]float64 {
	return [8]float64{
		v.LengthAvg,
		v.PunctuationRate,
		v.CapsRate,
		v.EmojiRate,
		v.DigitRate,
		v.URLRate,
		v.Entropy,
		v.Burstiness,
	}
}

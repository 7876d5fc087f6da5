package detect

import (
	"fmt"
	"math"

	"trustd/internal/features"
)

// Rhythm tier thresholds. Machine-generated text tends toward medium-high
// token entropy, low burstiness, and uniform sentence lengths.
const (
	rhythmAIThreshold = 0.55

	entropyBandLow   = 0.70
	entropyBandHigh  = 0.86
	entropyBandBonus = 0.3

	lowBurstinessMax   = 0.5
	lowBurstinessBonus = 0.25

	uniformityMin   = 0.7
	uniformityBonus = 0.2
)

// Rhythm computes token-level entropy, burstiness, and sentence-length
// uniformity into a confidence score.
func Rhythm(text string) TierResult {
	words := features.Words(text)
	wordCount := len(words)
	if wordCount == 0 {
		wordCount = 1
	}

	freq := make(map[string]int)
	for _, w := range words {
		freq[w]++
	}

	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(wordCount)
		entropy -= p * math.Log2(p)
	}
	normalizedEntropy := 0.0
	if maxEntropy := math.Log2(float64(wordCount)); maxEntropy > 0 {
		normalizedEntropy = entropy / maxEntropy
	}

	burstiness := features.WordBurstiness(text)

	uniformity := sentenceUniformity(text)

	score := 0.0
	if normalizedEntropy > entropyBandLow && normalizedEntropy < entropyBandHigh {
		score += entropyBandBonus
	}
	if burstiness < lowBurstinessMax {
		score += lowBurstinessBonus
	}
	if uniformity > uniformityMin {
		score += uniformityBonus
	}
	score = features.Clamp01(score)

	markers := []string{
		fmt.Sprintf("entropy:%.2f", normalizedEntropy),
		fmt.Sprintf("burstiness:%.2f", burstiness),
		fmt.Sprintf("uniformity:%.2f", uniformity),
	}

	return TierResult{
		IsAI:       score > rhythmAIThreshold,
		Confidence: score,
		Markers:    markers,
	}
}

// sentenceUniformity is 1 - std/mean of sentence lengths; 0 when the text
// has no sentences or a zero mean length.
func sentenceUniformity(text string) float64 {
	sentences := features.Sentences(text)
	if len(sentences) == 0 {
		return 0
	}

	lengths := make([]float64, len(sentences))
	for i, s := range sentences {
		lengths[i] = float64(len(s))
	}

	mean := features.Mean(lengths)
	if mean <= 0 {
		return 0
	}
	return 1 - features.Std(lengths)/mean
}

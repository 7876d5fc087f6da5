// Package features turns raw text into the fixed numeric feature vector
// consumed by the pattern-cluster matcher and the nightly ingestor.
//
// Extraction is pure and total: any input, including the empty string,
// produces a well-defined vector with no error path.
package features

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Counts holds the raw per-text tallies that callers may have already
// measured at capture time (the browser extension sends them alongside the
// text). All fields are non-negative.
type Counts struct {
	Length      int `json:"length"`
	Caps        int `json:"caps"`
	Punctuation int `json:"punctuation"`
	Digits      int `json:"digits"`
	Emojis      int `json:"emojis"`
	URLs        int `json:"urls"`
}

// Vector is the comparable text fingerprint. The eight fields here are the
// exact set used for centroid cosine similarity; rates are counts normalized
// by max(length, 1).
type Vector struct {
	LengthAvg       float64 `json:"lengthAvg"`
	PunctuationRate float64 `json:"punctuationRate"`
	CapsRate        float64 `json:"capsRate"`
	EmojiRate       float64 `json:"emojiRate"`
	DigitRate       float64 `json:"digitRate"`
	URLRate         float64 `json:"urlRate"`
	Entropy         float64 `json:"entropy"`
	Burstiness      float64 `json:"burstiness"`
}

var (
	punctRe = regexp.MustCompile(`[.,!?]`)
	capsRe  = regexp.MustCompile(`[A-Z]{2,}`)
	digitRe = regexp.MustCompile(`\d`)
	urlRe   = regexp.MustCompile(`(?i)https?://`)
	wordRe  = regexp.MustCompile(`\b\w+\b`)
)

// Count measures the raw tallies for a text. Emoji counting covers the
// emoticon block (U+1F600..U+1F64F), matching what the capture side sends.
func Count(text string) Counts {
	return Counts{
		Length:      len(text),
		Caps:        len(capsRe.FindAllString(text, -1)),
		Punctuation: len(punctRe.FindAllString(text, -1)),
		Digits:      len(digitRe.FindAllString(text, -1)),
		Emojis:      countEmoticons(text),
		URLs:        len(urlRe.FindAllString(text, -1)),
	}
}

func countEmoticons(text string) int {
	n := 0
	for _, r := range text {
		if r >= 0x1F600 && r <= 0x1F64F {
			n++
		}
	}
	return n
}

// HasEmoji reports whether the text contains any emoji from the emoticon or
// pictograph blocks. Used by the heuristic scorer's casual-context check,
// which looks at a wider range than Count does.
func HasEmoji(text string) bool {
	for _, r := range text {
		if (r >= 0x1F600 && r <= 0x1F64F) || (r >= 0x1F300 && r <= 0x1F5FF) {
			return true
		}
	}
	return false
}

// Extract builds the feature vector for a text. When counts is non-nil the
// externally measured tallies are used instead of recounting; a zero or
// negative length falls back to len(text).
func Extract(text string, counts *Counts) Vector {
	var c Counts
	if counts != nil {
		c = *counts
	} else {
		c = Count(text)
	}
	if c.Length <= 0 {
		c.Length = len(text)
	}

	denom := float64(c.Length)
	if denom < 1 {
		denom = 1
	}

	return Vector{
		LengthAvg:       float64(c.Length),
		PunctuationRate: float64(c.Punctuation) / denom,
		CapsRate:        float64(c.Caps) / denom,
		EmojiRate:       float64(c.Emojis) / denom,
		DigitRate:       float64(c.Digits) / denom,
		URLRate:         float64(c.URLs) / denom,
		Entropy:         CharEntropy(text),
		Burstiness:      WordBurstiness(text),
	}
}

// Words tokenizes a text into lowercase word tokens.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Sentences splits a text on terminal punctuation, dropping segments that
// are empty after trimming. The returned segments are not trimmed.
func Sentences(text string) []string {
	parts := regexp.MustCompile(`[.!?]`).Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// CharEntropy calculates Shannon entropy over character frequency.
// Formula: H = -sum (c_i/n) * log2(c_i/n). Empty text yields 0.
func CharEntropy(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	n := 0
	for _, r := range text {
		freq[r]++
		n++
	}

	// Map iteration order would vary the float summation order between
	// calls; fold the counts into a sorted slice so identical input gives
	// bit-identical output.
	counts := make([]int, 0, len(freq))
	for _, c := range freq {
		counts = append(counts, c)
	}
	sort.Ints(counts)

	entropy := 0.0
	nf := float64(n)
	for _, count := range counts {
		p := float64(count) / nf
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// WordBurstiness calculates the coefficient of variation of per-word
// occurrence counts (std/mean). Texts with no word tokens yield 0.
func WordBurstiness(text string) float64 {
	words := Words(text)
	if len(words) == 0 {
		return 0
	}

	freq := make(map[string]int)
	for _, w := range words {
		freq[w]++
	}

	reps := make([]float64, 0, len(freq))
	for _, c := range freq {
		reps = append(reps, float64(c))
	}
	sort.Float64s(reps)

	mean := Mean(reps)
	if mean == 0 {
		return 0
	}
	return Std(reps) / mean
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std returns the population standard deviation of values, 0 for an empty slice.
func Std(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// Clamp01 clamps x into [0, 1].
func Clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}

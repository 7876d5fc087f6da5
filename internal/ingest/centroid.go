package ingest

import (
	"regexp"
	"sort"
	"strings"

	"trustd/internal/features"
	"trustd/internal/pattern"
	"trustd/internal/store"
)

var (
	functionWordsRe   = regexp.MustCompile(`(?i)\b(however|therefore|thus|moreover|furthermore|nevertheless)\b`)
	transitionWordsRe = regexp.MustCompile(`(?i)\b(firstly|secondly|finally|additionally|consequently)\b`)
)

// computeCentroid builds the statistical centroid of a bucket from the
// stored per-sample counters.
func computeCentroid(bucket []store.SampleRecord) pattern.Centroid {
	n := len(bucket)
	lengths := make([]float64, n)
	punctRates := make([]float64, n)
	capsRates := make([]float64, n)
	emojiRates := make([]float64, n)
	digitRates := make([]float64, n)
	urlRates := make([]float64, n)
	entropySum := 0.0

	for i, r := range bucket {
		length := float64(r.Counts.Length)
		denom := length
		if denom < 1 {
			denom = 1
		}
		lengths[i] = length
		punctRates[i] = float64(r.Counts.Punctuation) / denom
		capsRates[i] = float64(r.Counts.Caps) / denom
		emojiRates[i] = float64(r.Counts.Emojis) / denom
		digitRates[i] = float64(r.Counts.Digits) / denom
		urlRates[i] = float64(r.Counts.URLs) / denom
		entropySum += features.CharEntropy(r.Text)
	}

	var c pattern.Centroid
	c.LengthAvg = features.Mean(lengths)
	c.LengthStd = features.Std(lengths)
	c.PunctuationRate = features.Mean(punctRates)
	c.CapsRate = features.Mean(capsRates)
	c.EmojiRate = features.Mean(emojiRates)
	c.DigitRate = features.Mean(digitRates)
	c.URLRate = features.Mean(urlRates)
	if n > 0 {
		c.Entropy = entropySum / float64(n)
	}
	// Cross-sample burstiness: spread of text lengths relative to their
	// mean. This is a coarser signal than the per-text word burstiness
	// the extractor computes.
	c.Burstiness = features.Std(lengths) / (features.Mean(lengths) + 1)

	return c
}

// computeSignature derives the shared writing-style fingerprint of a bucket.
func computeSignature(bucket []store.SampleRecord) pattern.StyleSignature {
	texts := make([]string, len(bucket))
	for i, r := range bucket {
		texts[i] = r.Text
	}

	return pattern.StyleSignature{
		FunctionWords:   topCommonWords(texts, functionWordsRe, 10),
		TransitionWords: topCommonWords(texts, transitionWordsRe, 10),
		SemanticDensity: semanticDensity(texts),
		CoherenceScore:  0.5,
		Repetitiveness:  repetitiveness(texts),
	}
}

// topCommonWords returns the most frequent matches of re across all texts,
// most frequent first, ties broken by first appearance.
func topCommonWords(texts []string, re *regexp.Regexp, limit int) []string {
	freq := make(map[string]int)
	var order []string

	for _, text := range texts {
		for _, m := range re.FindAllString(text, -1) {
			word := strings.ToLower(m)
			if freq[word] == 0 {
				order = append(order, word)
			}
			freq[word]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

// semanticDensity is the ratio of unique to total words across the bucket.
func semanticDensity(texts []string) float64 {
	total := 0
	unique := make(map[string]struct{})
	for _, text := range texts {
		for _, w := range features.Words(text) {
			total++
			unique[w] = struct{}{}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(len(unique)) / float64(total)
}

// repetitiveness measures how often identical texts recur in the bucket.
func repetitiveness(texts []string) float64 {
	if len(texts) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		unique[t] = struct{}{}
	}
	return 1 - float64(len(unique))/float64(len(texts))
}

package detect

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"trustd/internal/features"
)

// Additive point contributions for the heuristic tier. The relative ordering
// of these values is part of the scorer's contract.
const (
	heuristicAIThreshold = 0.6

	transitionCap  = 0.3
	transitionBase = 0.1
	transitionStep = 0.05

	metaIntroBonus      = 0.2
	sentenceRegimeBonus = 0.15
	polishedBonus       = 0.2
	styleDriftBonus     = 0.15
	phraseStep          = 0.1
	phraseCap           = 0.3
	noEmojiCasualBonus  = 0.1

	sentenceRegimeLow  = 22.0
	sentenceRegimeHigh = 38.0
	polishedMinLen     = 80
	noEmojiMinLen      = 60
	styleDriftMin      = 0.9
)

var (
	transitionRe = regexp.MustCompile(`(?i)\b(however|moreover|furthermore|therefore|thus|consequently|additionally|nevertheless|in summary|in conclusion)\b`)
	metaIntroRe  = regexp.MustCompile(`(?i)in today's (digital|online|ai|technology) (age|landscape)`)
	importantRe  = regexp.MustCompile(`(?i)it's important to note`)
	slangRe      = regexp.MustCompile(`(?i)\b(ur|gonna|wanna|kinda|tho|cuz|lol|lmao|smh|wtf)\b`)
	polishedRe   = regexp.MustCompile(`^[A-Z].*[.!?]$`)
	casualRe     = regexp.MustCompile(`(?i)lol|haha|bro|dude|lmao|omg`)
)

// DefaultAIPhrases is the stock-phrase list flagged by the heuristic tier.
// Overridable per scorer for platform-specific tuning.
var DefaultAIPhrases = []string{
	"let's break this down",
	"step-by-step",
	"this guide will help you",
	"navigate the landscape",
	"unlock the potential",
	"it's worth noting that",
	"to summarize",
	"key takeaway",
}

// HeuristicScorer pattern-matches stylistic markers into a confidence score.
// The zero value uses DefaultAIPhrases.
type HeuristicScorer struct {
	// Phrases overrides the stock-phrase list when non-nil.
	Phrases []string
}

// Heuristics scores a text with the default phrase list.
func Heuristics(text string) TierResult {
	var s HeuristicScorer
	return s.Score(text)
}

// Score accumulates additive point contributions for each stylistic marker
// found, then clamps to [0, 1]. Callers are expected to have short-circuited
// text under MinTextLen already; shorter text still processes.
func (s *HeuristicScorer) Score(text string) TierResult {
	score := 0.0
	var markers []string

	lower := strings.ToLower(text)

	// Transition-word overuse.
	transitions := transitionRe.FindAllString(lower, -1)
	if len(transitions) > 2 {
		score += math.Min(transitionCap, transitionBase+float64(len(transitions))*transitionStep)
		markers = append(markers, fmt.Sprintf("excessive_transitions:%d", len(transitions)))
	}

	// Canned meta-intro framing.
	if metaIntroRe.MatchString(lower) || importantRe.MatchString(lower) {
		score += metaIntroBonus
		markers = append(markers, "ai_meta_intro")
	}

	// Sentence-length regime.
	sentences := features.Sentences(text)
	denom := float64(len(sentences))
	if denom < 1 {
		denom = 1
	}
	avgSentenceLength := float64(len(text)) / denom
	if avgSentenceLength > sentenceRegimeLow && avgSentenceLength < sentenceRegimeHigh {
		score += sentenceRegimeBonus
		markers = append(markers, fmt.Sprintf("optimal_sentence_length:%.1f", avgSentenceLength))
	}

	// Polished writing with no slang.
	trimmed := strings.TrimSpace(text)
	if !slangRe.MatchString(lower) && polishedRe.MatchString(trimmed) && len(text) > polishedMinLen {
		score += polishedBonus
		markers = append(markers, "perfect_writing_low_slang")
	}

	// Style drift between halves.
	half := len(text) / 2
	consistency := styleConsistency(text[:half], text[half:])
	if consistency > styleDriftMin {
		score += styleDriftBonus
		markers = append(markers, fmt.Sprintf("no_style_drift:%.2f", consistency))
	}

	// Stock phrases.
	phrases := s.Phrases
	if phrases == nil {
		phrases = DefaultAIPhrases
	}
	found := 0
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			found++
			markers = append(markers, "ai_phrase:"+p)
		}
	}
	if found > 0 {
		score += math.Min(phraseCap, float64(found)*phraseStep)
	}

	// Emoji absence in a clearly casual context.
	if !features.HasEmoji(text) && casualRe.MatchString(text) && len(text) > noEmojiMinLen {
		score += noEmojiCasualBonus
		markers = append(markers, "no_emoji_casual")
	}

	score = features.Clamp01(score)

	return TierResult{
		IsAI:       score > heuristicAIThreshold,
		Confidence: score,
		Markers:    markers,
	}
}

// styleConsistency compares average word length and punctuation density
// between two text segments, returning a consistency score in [0, 1].
func styleConsistency(a, b string) float64 {
	awl1, pd1 := segmentStyle(a)
	awl2, pd2 := segmentStyle(b)

	denom := math.Max(awl1, awl2)
	if awl2 == 0 {
		denom = math.Max(awl1, 1)
	}
	wlDiff := math.Abs(awl1-awl2) / denom
	pDiff := math.Abs(pd1 - pd2)

	return features.Clamp01(1 - (wlDiff+pDiff)/2)
}

func segmentStyle(text string) (avgWordLength, punctDensity float64) {
	words := features.Words(text)
	totalLen := 0
	for _, w := range words {
		totalLen += len(w)
	}
	wordDenom := float64(len(words))
	if wordDenom < 1 {
		wordDenom = 1
	}
	avgWordLength = float64(totalLen) / wordDenom

	textDenom := float64(len(text))
	if textDenom < 1 {
		textDenom = 1
	}
	punct := 0
	for _, r := range text {
		switch r {
		case '.', ',', '!', '?':
			punct++
		}
	}
	punctDensity = float64(punct) / textDenom
	return avgWordLength, punctDensity
}

package detect

import (
	"strings"
	"testing"
)

func hasMarker(markers []string, want string) bool {
	for _, m := range markers {
		if m == want || strings.HasPrefix(m, want) {
			return true
		}
	}
	return false
}

func TestHeuristicsCasualSlangText(t *testing.T) {
	// Slang plus an emoji: neither the polished-writing nor the
	// no-emoji-casual bonus may fire.
	text := "lol ur kinda right tho 😂 gonna grab some food rn haha ok dude for real"

	res := Heuristics(text)

	if res.IsAI {
		t.Error("casual slang text flagged as AI")
	}
	if hasMarker(res.Markers, "perfect_writing_low_slang") {
		t.Error("polished-writing bonus fired on slang text")
	}
	if hasMarker(res.Markers, "no_emoji_casual") {
		t.Error("no-emoji bonus fired on text containing an emoji")
	}
}

func TestHeuristicsTransitionHeavyText(t *testing.T) {
	text := "However, the data is clear. Moreover, the trends continue upward. " +
		"Therefore, we must act now. Furthermore, it's worth noting that the results align " +
		"perfectly, and to summarize, the outlook remains stable."

	res := Heuristics(text)

	if !hasMarker(res.Markers, "excessive_transitions:") {
		t.Error("missing excessive_transitions marker")
	}
	if !hasMarker(res.Markers, "ai_phrase:it's worth noting that") {
		t.Errorf("missing stock-phrase marker, got %v", res.Markers)
	}
	if !hasMarker(res.Markers, "perfect_writing_low_slang") {
		t.Error("missing polished-writing marker")
	}
	if res.Confidence <= 0.6 {
		t.Errorf("confidence = %v, want > 0.6", res.Confidence)
	}
	if !res.IsAI {
		t.Error("transition-heavy polished text not flagged as AI")
	}
}

func TestHeuristicsTransitionThresholdNotMet(t *testing.T) {
	// Two transitions are allowed before the marker fires.
	res := Heuristics("However the weather turned. Therefore we stayed home and watched old movies all afternoon")

	if hasMarker(res.Markers, "excessive_transitions:") {
		t.Errorf("marker fired on only two transitions: %v", res.Markers)
	}
}

func TestHeuristicsMetaIntro(t *testing.T) {
	res := Heuristics("In today's digital age, everything moves fast and nobody slows down for long")
	if !hasMarker(res.Markers, "ai_meta_intro") {
		t.Errorf("missing ai_meta_intro marker, got %v", res.Markers)
	}
}

func TestHeuristicsPhraseCap(t *testing.T) {
	// Four stock phrases, but the phrase contribution caps at 0.3.
	s := &HeuristicScorer{Phrases: []string{"alpha one", "beta two", "gamma three", "delta four"}}
	withFour := s.Score("alpha one beta two gamma three delta four plus filler text here")

	s3 := &HeuristicScorer{Phrases: []string{"alpha one", "beta two", "gamma three"}}
	withThree := s3.Score("alpha one beta two gamma three delta four plus filler text here")

	if withFour.Confidence != withThree.Confidence {
		t.Errorf("phrase cap not applied: 4 phrases = %v, 3 phrases = %v",
			withFour.Confidence, withThree.Confidence)
	}
}

func TestHeuristicsCustomPhraseList(t *testing.T) {
	s := &HeuristicScorer{Phrases: []string{"totally custom marker phrase"}}
	res := s.Score("this text has a totally custom marker phrase inside of it somewhere")

	if !hasMarker(res.Markers, "ai_phrase:totally custom marker phrase") {
		t.Errorf("custom phrase not flagged, got %v", res.Markers)
	}
	if hasMarker(res.Markers, "ai_phrase:it's worth noting that") {
		t.Error("default phrase list used despite override")
	}
}

func TestHeuristicsConfidenceClamped(t *testing.T) {
	// Stack every bonus; the result must stay within [0, 1].
	text := "In today's digital age, it's worth noting that we should act. However, moreover, " +
		"furthermore, therefore, thus, the key takeaway is to summarize this guide will help you " +
		"navigate the landscape and unlock the potential step-by-step."

	res := Heuristics(text)
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence out of range: %v", res.Confidence)
	}
}

func TestStyleConsistencyIdenticalHalves(t *testing.T) {
	got := styleConsistency("the quick brown fox.", "the quick brown fox.")
	if got <= 0.99 {
		t.Errorf("identical halves consistency = %v, want ~1", got)
	}
}

func TestStyleConsistencyEmptySegments(t *testing.T) {
	got := styleConsistency("", "")
	if got < 0 || got > 1 {
		t.Errorf("empty-segment consistency out of range: %v", got)
	}
}

package detect

import (
	"strings"
	"testing"
)

func TestRhythmAlwaysEmitsThreeMarkers(t *testing.T) {
	for _, text := range []string{
		"",
		"one",
		"A longer piece of text. With several sentences. And varied words throughout.",
	} {
		res := Rhythm(text)
		if len(res.Markers) != 3 {
			t.Errorf("Rhythm(%q) markers = %v, want entropy/burstiness/uniformity", text, res.Markers)
		}
	}
}

func TestRhythmEmptyText(t *testing.T) {
	res := Rhythm("")
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence out of range: %v", res.Confidence)
	}
	if !hasMarker(res.Markers, "entropy:0.00") {
		t.Errorf("empty text entropy marker wrong: %v", res.Markers)
	}
}

func TestRhythmUniformSentences(t *testing.T) {
	// Four sentences of identical length: uniformity is exactly 1.
	text := strings.Repeat("aaaa bbbb cccc dddd.", 4)

	res := Rhythm(text)
	if !hasMarker(res.Markers, "uniformity:1.00") {
		t.Errorf("identical sentence lengths should give uniformity 1, got %v", res.Markers)
	}
	// Low burstiness plus full uniformity: both bonuses apply.
	if res.Confidence < 0.45 {
		t.Errorf("confidence = %v, want >= 0.45 (burstiness + uniformity bonuses)", res.Confidence)
	}
}

func TestRhythmRepetitiveTextScoresLowEntropy(t *testing.T) {
	// One word repeated: entropy is 0 and burstiness is 0.
	res := Rhythm(strings.TrimSpace(strings.Repeat("same ", 40)))
	if !hasMarker(res.Markers, "entropy:0.00") {
		t.Errorf("repeated word should have zero normalized entropy, got %v", res.Markers)
	}
	if !hasMarker(res.Markers, "burstiness:0.00") {
		t.Errorf("single-word vocabulary should have zero burstiness, got %v", res.Markers)
	}
}

func TestSentenceUniformityNoSentences(t *testing.T) {
	if got := sentenceUniformity(""); got != 0 {
		t.Errorf("uniformity of empty text = %v, want 0", got)
	}
}

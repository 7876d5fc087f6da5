package effort

import (
	"math"
	"testing"
)

func TestHumanSignalSlangyText(t *testing.T) {
	hs := humanSignalScore(humanSignalInput{
		Text:            "lol nah bro that was wild fr. i swear the ending was insane!!",
		LastMessageTime: noTimingData,
	})
	if hs.Label != LabelHuman {
		t.Errorf("label = %q (score %d), want %q", hs.Label, hs.Score, LabelHuman)
	}
}

func TestHumanSignalFastRepliesPenalized(t *testing.T) {
	base := humanSignalInput{Text: "same message text for both runs here", LastMessageTime: noTimingData}
	slow := humanSignalScore(base)

	base.LastMessageTime = 500
	fast := humanSignalScore(base)

	// Slow replies earn +12; sub-second replies stack -12 and -20.
	if slow.Score-fast.Score != 44 {
		t.Errorf("timing swing = %d, want 44 (slow %d, fast %d)", slow.Score-fast.Score, slow.Score, fast.Score)
	}
}

func TestHumanSignalTidyProsePenalized(t *testing.T) {
	tidy := humanSignalScore(humanSignalInput{
		Text:            "This sentence is carefully composed and properly terminated today",
		LastMessageTime: noTimingData,
	})
	terminated := humanSignalScore(humanSignalInput{
		Text:            "This sentence is carefully composed and properly terminated today.",
		LastMessageTime: noTimingData,
	})
	// The trailing period completes the tidy-prose shape (-6) but also
	// lets the mixed-token pattern match (+8).
	if terminated.Score-tidy.Score != 2 {
		t.Errorf("tidy-prose delta = %d, want 2 (%d vs %d)", terminated.Score-tidy.Score, terminated.Score, tidy.Score)
	}
}

func TestHumanSignalShortTextPenalized(t *testing.T) {
	short := humanSignalScore(humanSignalInput{Text: "ok cool", LastMessageTime: noTimingData})
	longer := humanSignalScore(humanSignalInput{Text: "ok cool see you there", LastMessageTime: noTimingData})
	if short.Score >= longer.Score {
		t.Errorf("short %d should score below longer %d", short.Score, longer.Score)
	}
}

func TestHumanSignalRepetitionCues(t *testing.T) {
	base := humanSignalInput{Text: "that was funny and we laughed", LastMessageTime: noTimingData}
	plain := humanSignalScore(base)

	base.Text = "that was funny 😂😂 and we laughed"
	doubled := humanSignalScore(base)
	if plain.Score-doubled.Score != 10 {
		t.Errorf("double-emoji delta = %d, want 10", plain.Score-doubled.Score)
	}

	base.Text = "that was funnyyyy and we laughed"
	stretched := humanSignalScore(base)
	if plain.Score-stretched.Score != 6 {
		t.Errorf("char-run delta = %d, want 6", plain.Score-stretched.Score)
	}
}

func TestHumanSignalContextOverlap(t *testing.T) {
	matching := humanSignalScore(humanSignalInput{
		Text:            "the mountain sunset was unreal",
		Context:         "mountain sunset photography",
		LastMessageTime: noTimingData,
	})
	offTopic := humanSignalScore(humanSignalInput{
		Text:            "the mountain sunset was unreal",
		Context:         "crypto trading signals",
		LastMessageTime: noTimingData,
	})
	// +10 for overlap versus -10 for a total mismatch.
	if matching.Score-offTopic.Score != 20 {
		t.Errorf("context swing = %d, want 20 (%d vs %d)", matching.Score-offTopic.Score, matching.Score, offTopic.Score)
	}
}

func TestHumanSignalMessageDiversity(t *testing.T) {
	base := humanSignalInput{Text: "checking in on the thread again", LastMessageTime: noTimingData}

	base.LastMessages = []string{"ok", "yes", "nice"}
	uniform := humanSignalScore(base)

	base.LastMessages = []string{"ok", "that was a genuinely long reply with detail"}
	varied := humanSignalScore(base)

	// Uniform short replies lose 6; a wide length spread gains 6.
	if varied.Score-uniform.Score != 12 {
		t.Errorf("diversity swing = %d, want 12 (%d vs %d)", varied.Score-uniform.Score, varied.Score, uniform.Score)
	}
}

func TestHumanSignalEmojiHeavyHistory(t *testing.T) {
	base := humanSignalInput{Text: "checking in on the thread again", LastMessageTime: noTimingData}

	base.LastMessages = []string{"😂 nice one", "🔥🔥 love it", "😭 too real"}
	emojiHeavy := humanSignalScore(base)

	base.LastMessages = []string{"hm nice one", "ok love it", "ha too real"}
	plain := humanSignalScore(base)

	if plain.Score-emojiHeavy.Score != 4 {
		t.Errorf("emoji-history delta = %d, want 4", plain.Score-emojiHeavy.Score)
	}
}

func TestUsernameEntropy(t *testing.T) {
	if got := usernameEntropy(""); got != 0.5 {
		t.Errorf("empty name entropy = %v, want 0.5", got)
	}
	if got := usernameEntropy("aaaa"); got != 0 {
		t.Errorf("single-char name entropy = %v, want 0", got)
	}
	// 14 distinct characters: log2(14)/5, past the penalty threshold.
	got := usernameEntropy("x8Kq2p9Zw4LmT3")
	want := math.Log2(14) / 5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("entropy = %v, want %v", got, want)
	}
	if got <= 0.75 {
		t.Errorf("generated-looking handle entropy = %v, want > 0.75", got)
	}
}

func TestHasCharRun(t *testing.T) {
	cases := []struct {
		s    string
		want bool
	}{
		{"soooon", true},
		{"sooon", false},
		{"soon", false},
		{"", false},
		{"!!!!", true},
	}
	for _, tc := range cases {
		if got := hasCharRun(tc.s, 4); got != tc.want {
			t.Errorf("hasCharRun(%q) = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestSignalLabelBands(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{100, LabelHuman},
		{80, LabelHuman},
		{79, LabelLikelyHuman},
		{60, LabelLikelyHuman},
		{59, LabelSuspect},
		{40, LabelSuspect},
		{39, LabelAI},
		{0, LabelAI},
	}
	for _, tc := range cases {
		if got := signalLabel(tc.score); got != tc.want {
			t.Errorf("signalLabel(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestHumanSignalFromMetadataTextFallback(t *testing.T) {
	if _, ok := humanSignalFromMetadata(Metadata{}); ok {
		t.Error("no text fields should yield no signal")
	}
	if _, ok := humanSignalFromMetadata(Metadata{RawText: "   "}); ok {
		t.Error("whitespace-only text should yield no signal")
	}
	if _, ok := humanSignalFromMetadata(Metadata{Title: "a plain title"}); !ok {
		t.Error("title alone should be enough text to score")
	}
}

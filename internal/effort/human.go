package effort

import (
	"math"
	"regexp"
	"strings"
)

// HumanSignal is the micro engine's verdict over the raw text attached to a
// piece of content.
type HumanSignal struct {
	Score int
	Label string
}

var (
	mixedTokenRe    = regexp.MustCompile(`[a-z]{3,}[^a-z\s]`)
	slangSignalRe   = regexp.MustCompile(`(?i)(bro|bruh|lmao|lol|idk|nah|fr|on god|rn|wtf)`)
	exclaimRe       = regexp.MustCompile(`(?i)(wow|pls|wild|insane|i swear)`)
	tidyProseRe     = regexp.MustCompile(`^[A-Z].*[a-z]+\.$`)
	doubleEmojiRe   = regexp.MustCompile(`(😂😂|😭😭|🔥🔥|😍😍)`)
	stretchPunctRe  = regexp.MustCompile(`[?!]{2,}|\.{2,}`)
	reactionEmojiRe = regexp.MustCompile(`[😂😭🔥😍💯]`)
	nonWordRe       = regexp.MustCompile(`\W+`)
	signalSplitRe   = regexp.MustCompile(`[.!?]`)
)

// humanSignalInput gathers the text-level evidence the micro engine reads.
// LastMessageTime is milliseconds between the author's last two messages;
// large values mean no timing data.
type humanSignalInput struct {
	Text            string
	Username        string
	Context         string
	LastMessages    []string
	LastMessageTime int64
}

const noTimingData = 9999

// humanSignalFromMetadata assembles the engine's input from whichever text
// fields the metadata carries. Returns false when there is no text at all.
func humanSignalFromMetadata(m Metadata) (HumanSignal, bool) {
	text := firstNonEmpty(m.RawText, m.Caption, m.Description, m.Title)
	if strings.TrimSpace(text) == "" {
		return HumanSignal{}, false
	}

	var contextParts []string
	if m.Title != "" {
		contextParts = append(contextParts, m.Title)
	}
	if tags := strings.Join(m.Hashtags, " "); tags != "" {
		contextParts = append(contextParts, tags)
	}

	lastMessageTime := int64(noTimingData)
	if m.LastMessageTime != nil {
		lastMessageTime = *m.LastMessageTime
	}

	return humanSignalScore(humanSignalInput{
		Text:            text,
		Username:        firstNonEmpty(m.Username, m.Author, m.ChannelName, m.Handle),
		Context:         strings.Join(contextParts, " "),
		LastMessages:    m.LastMessages,
		LastMessageTime: lastMessageTime,
	}), true
}

// humanSignalScore starts from a neutral 50 and nudges for linguistic
// messiness, reply timing, context overlap, username entropy, and the
// diversity of the author's recent messages.
func humanSignalScore(in humanSignalInput) HumanSignal {
	score := 50
	lower := strings.ToLower(in.Text)

	// Linguistic texture.
	if mixedTokenRe.MatchString(lower) {
		score += 8
	}
	if slangSignalRe.MatchString(lower) {
		score += 6
	}
	if exclaimRe.MatchString(lower) {
		score += 6
	}

	sentences := splitSignalSentences(in.Text)
	if len(sentences) >= 2 && len(sentences[0]) != len(sentences[1]) {
		score += 8
	}

	if tidyProseRe.MatchString(in.Text) && len(in.Text) > 25 {
		score -= 6
	}
	if len(in.Text) < 10 {
		score -= 8
	}

	// Repetition cues.
	if doubleEmojiRe.MatchString(lower) {
		score -= 10
	}
	if hasCharRun(lower, 4) {
		score -= 6
	}
	if stretchPunctRe.MatchString(lower) {
		score += 4
	}

	// Timing cues. Sub-second replies compound both penalties.
	if in.LastMessageTime < 2000 {
		score -= 12
	}
	if in.LastMessageTime < 1000 {
		score -= 20
	}
	if in.LastMessageTime > 4000 {
		score += 12
	}

	// Context-word overlap.
	if in.Context != "" {
		cWords := wordSet(strings.ToLower(in.Context))
		tWords := splitWords(lower)

		overlap := 0
		for _, w := range tWords {
			if _, ok := cWords[w]; ok {
				overlap++
			}
		}
		if overlap >= 2 {
			score += 10
		}
		if overlap == 0 && len(tWords) >= 3 {
			score -= 10
		}
	}

	// Username entropy.
	entropy := usernameEntropy(in.Username)
	if entropy > 0.75 {
		score -= 12
	}
	if entropy < 0.45 && strings.TrimSpace(in.Username) != "" {
		score += 6
	}

	// Recent-message diversity.
	if len(in.LastMessages) > 0 {
		minLen, maxLen := len(in.LastMessages[0]), len(in.LastMessages[0])
		allShort := true
		emojiHeavy := 0
		for _, msg := range in.LastMessages {
			l := len(msg)
			if l >= 8 {
				allShort = false
			}
			if l < minLen {
				minLen = l
			}
			if l > maxLen {
				maxLen = l
			}
			if reactionEmojiRe.MatchString(msg) {
				emojiHeavy++
			}
		}
		if allShort {
			score -= 6
		}
		if emojiHeavy >= 3 {
			score -= 4
		}
		if maxLen-minLen > 10 {
			score += 6
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return HumanSignal{Score: score, Label: signalLabel(score)}
}

func signalLabel(score int) string {
	switch {
	case score >= 80:
		return LabelHuman
	case score >= 60:
		return LabelLikelyHuman
	case score >= 40:
		return LabelSuspect
	default:
		return LabelAI
	}
}

// usernameEntropy is the character-level Shannon entropy of a handle scaled
// by 1/5, so generated names with wide character spreads push past 0.75.
// An absent handle sits at the neutral 0.5.
func usernameEntropy(name string) float64 {
	if name == "" {
		return 0.5
	}

	freq := make(map[rune]int)
	total := 0
	for _, r := range name {
		freq[r]++
		total++
	}

	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}

	return entropy / 5
}

// hasCharRun reports whether any character repeats n or more times in a row.
func hasCharRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

func splitSignalSentences(text string) []string {
	parts := signalSplitRe.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitWords(s string) []string {
	parts := nonWordRe.Split(s, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range splitWords(s) {
		set[w] = struct{}{}
	}
	return set
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package detect

import (
	"regexp"
	"strings"
)

var (
	conversationalRe = regexp.MustCompile(`(?i)\b(let's|we can|we'll|we could)\b`)
	gentleToneRe     = regexp.MustCompile(`(?i)here's the thing|the cool part|the nice part`)
	bulletRe         = regexp.MustCompile(`\n[-*]\s`)
	numberedRe       = regexp.MustCompile(`\n\d+\.\s`)
	openWeightRe     = regexp.MustCompile(`(?i)open-source|meta ai|llama`)
)

// GuessModel infers the likely text origin from the markers the local tiers
// produced plus a few direct textual cues. Purely associative; "unknown"
// whenever no pattern stands out.
func GuessModel(text string, markers []string) string {
	lower := strings.ToLower(text)

	// Heavy transitions plus stock phrases reads like GPT-4 output.
	if hasMarkerPrefix(markers, "excessive_transitions") && hasMarkerPrefix(markers, "ai_phrase:") {
		return "gpt-4"
	}

	// Conversational framing with a gentle tone reads like Claude.
	if conversationalRe.MatchString(lower) && gentleToneRe.MatchString(lower) {
		return "claude"
	}

	// List-heavy structure reads like Gemini.
	bullets := len(bulletRe.FindAllString(text, -1)) + len(numberedRe.FindAllString(text, -1))
	if bullets >= 3 {
		return "gemini"
	}

	if openWeightRe.MatchString(lower) {
		return "llama"
	}

	return "unknown"
}

func hasMarkerPrefix(markers []string, prefix string) bool {
	for _, m := range markers {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

package detect

import (
	"trustd/internal/features"
)

// Version is stamped on every signature this pipeline produces.
const Version = "2026.1"

// Detection methods recorded on a signature.
const (
	MethodTooShort = "too-short"
	MethodHybrid   = "hybrid-local+pattern"
	MethodLLM      = "hybrid+llm"
)

// MinTextLen is the minimum text length for full tiered analysis. Shorter
// text short-circuits to the fixed too-short result.
const MinTextLen = 32

// Sample is one unit of text submitted for detection. CalibratedScore is the
// externally supplied prior in [0, 1]; nil means no prior was provided.
// Counts, when present, carries tallies measured at capture time so the
// feature extractor can skip recounting.
type Sample struct {
	ID              string
	Domain          string
	DeviceID        string
	Text            string
	CalibratedScore *float64
	Counts          *features.Counts
}

// TierResult is the output shape shared by the heuristic and rhythm scorers.
type TierResult struct {
	IsAI       bool
	Confidence float64
	Markers    []string
}

// Signature is the final detection verdict attached to a sample. It is
// immutable once written; LLM refinement produces a replacement with method
// MethodLLM rather than mutating the hybrid result in place.
type Signature struct {
	IsAI         bool               `json:"isAI"`
	Confidence   float64            `json:"confidence"`
	Method       string             `json:"method"`
	Model        string             `json:"model"`
	Markers      []string           `json:"markers"`
	SourceScores map[string]float64 `json:"sourceScores"`
	Platform     string             `json:"platform,omitempty"`
	Version      string             `json:"version"`
}

// TooShortSignature returns the fixed low-confidence result for text under
// MinTextLen. Deterministic by contract.
func TooShortSignature() Signature {
	return Signature{
		IsAI:         false,
		Confidence:   0.35,
		Method:       MethodTooShort,
		Model:        "unknown",
		Markers:      []string{"short_text"},
		SourceScores: map[string]float64{},
		Version:      Version,
	}
}

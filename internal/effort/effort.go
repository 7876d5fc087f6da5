// Package effort implements the proof-of-human score over social content
// metadata. The score starts at 100 and loses points for fraud signals:
// engagement disproportionate to reach, synthetic view growth, missing or
// machine-written descriptions, and external risk feeds. A text-level
// micro engine blends in when the metadata carries any usable text.
package effort

import (
	"fmt"
	"math"
	"time"
)

// Labels reported for the blended human-signal verdict.
const (
	LabelHuman       = "human"
	LabelLikelyHuman = "likely-human"
	LabelSuspect     = "suspect"
	LabelAI          = "ai"
)

// HumanEffortThreshold splits the final score into the two summary tags.
const HumanEffortThreshold = 70

// Metadata is the social-content snapshot submitted for scoring. Everything
// is optional; absent fields simply skip their checks.
type Metadata struct {
	ViewCount      int64   `json:"viewCount"`
	CommentCount   int64   `json:"commentCount"`
	FollowerCount  int64   `json:"followerCount"`
	EngagementRate float64 `json:"engagementRate"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	UploadDate  string `json:"uploadDate,omitempty"`

	RawText     string   `json:"rawText,omitempty"`
	Caption     string   `json:"caption,omitempty"`
	Username    string   `json:"username,omitempty"`
	Author      string   `json:"author,omitempty"`
	ChannelName string   `json:"channelName,omitempty"`
	Handle      string   `json:"handle,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`

	LastMessages    []string `json:"lastMessages,omitempty"`
	LastMessageTime *int64   `json:"lastMessageTimeMs,omitempty"`

	Arkham *ArkhamData `json:"arkhamData,omitempty"`
	Plaid  *PlaidData  `json:"plaidData,omitempty"`
}

// ArkhamData carries on-chain risk signals from an external feed.
type ArkhamData struct {
	BlockchainSignals []string `json:"blockchainSignals"`
}

// PlaidData carries identity-verification risk signals.
type PlaidData struct {
	RiskScore        float64  `json:"plaidRiskScore"`
	IdentityMismatch bool     `json:"plaidIdentityMismatch"`
	BeaconSignals    []string `json:"plaidBeaconSignals,omitempty"`
}

// Result is the scored verdict: a 0-100 score where higher means more
// plausibly human, the band label for that score, plus the tags and
// human-readable reasons behind it.
type Result struct {
	Score   int      `json:"score"`
	Label   string   `json:"label"`
	Tags    []string `json:"tags"`
	Reasons []string `json:"reasons"`
}

// DescriptionAnalyzer reports whether a description reads as
// machine-generated. A failed analysis records a reason without penalizing.
type DescriptionAnalyzer func(text string) (bool, error)

// Scorer runs the proof-of-human recipe. The zero value works: no
// description analysis and wall-clock time.
type Scorer struct {
	// Analyzer, when set, checks descriptions for AI authorship.
	Analyzer DescriptionAnalyzer
	// Now overrides wall-clock time for the upload-age check.
	Now func() time.Time
}

func (s *Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Score applies every metadata check and, when the metadata contains text,
// blends in the human-signal micro engine at 60/40.
func (s *Scorer) Score(m Metadata) Result {
	score := 100.0
	var tags, reasons []string

	// Engagement rate against reach.
	switch {
	case m.FollowerCount > 1000:
		const expectedMin = 0.01
		if m.EngagementRate < expectedMin {
			penalty := math.Min(20, (expectedMin-m.EngagementRate)*500)
			score -= penalty
			tags = append(tags, "disproportionate_engagement")
			reasons = append(reasons, fmt.Sprintf(
				"Engagement rate (%.2f%%) is significantly low for follower count.",
				m.EngagementRate*100))
		}
	case m.FollowerCount < 50 && m.ViewCount > 10000 && m.CommentCount < 5:
		score -= 30
		tags = append(tags, "synthetic_reach_inflation")
		reasons = append(reasons, "High views with very low followers/comments suggest synthetic reach.")
	}

	// Comment gap.
	if m.CommentCount < 3 && m.ViewCount > 5000 {
		score -= 10
		tags = append(tags, "comment_gap")
		reasons = append(reasons, "High views with disproportionately few comments.")
	}

	// Description check.
	if m.Description != "" {
		if s.Analyzer != nil {
			isAI, err := s.Analyzer(m.Description)
			switch {
			case err != nil:
				reasons = append(reasons, "Description AI analysis failed")
			case isAI:
				score -= 25
				tags = append(tags, "ai_generated_description")
				reasons = append(reasons, "Description shows patterns of AI-generated content.")
			}
		}
	} else {
		score -= 5
		tags = append(tags, "missing_description")
		reasons = append(reasons, "Content is missing a description.")
	}

	// Upload-age anomaly.
	if m.UploadDate != "" {
		if uploaded, err := parseUploadDate(m.UploadDate); err == nil {
			ageHrs := s.now().Sub(uploaded).Hours()
			if ageHrs < 72 && m.ViewCount > 500000 && m.EngagementRate < 0.005 {
				score -= 20
				tags = append(tags, "rapid_synthetic_growth")
				reasons = append(reasons, "Unnaturally fast view growth with very low engagement.")
			}
		}
	}

	// External risk feeds.
	if m.Arkham != nil {
		if containsString(m.Arkham.BlockchainSignals, "sybil_activity_detected") {
			score -= 40
			tags = append(tags, "web3_sybil_attack")
			reasons = append(reasons, "Sybil activity detected.")
		}
		if containsString(m.Arkham.BlockchainSignals, "wash_trading_pattern") {
			score -= 35
			tags = append(tags, "web3_wash_trading")
			reasons = append(reasons, "Wash trading behavior flagged.")
		}
		if containsString(m.Arkham.BlockchainSignals, "known_scam_address_interaction") {
			score -= 50
			tags = append(tags, "web3_scam_interaction")
			reasons = append(reasons, "Interaction with a known scam address.")
		}
	}
	if m.Plaid != nil {
		if m.Plaid.RiskScore > 0.75 {
			score -= 30
			tags = append(tags, "plaid_high_risk")
			reasons = append(reasons, fmt.Sprintf("High Plaid risk score (%.0f%%).", m.Plaid.RiskScore*100))
		}
		if m.Plaid.IdentityMismatch {
			score -= 50
			tags = append(tags, "plaid_identity_mismatch")
			reasons = append(reasons, "Plaid detected an identity mismatch.")
		}
		if containsString(m.Plaid.BeaconSignals, "known_fraudster") {
			score -= 60
			tags = append(tags, "plaid_known_fraudster")
			reasons = append(reasons, "Identity flagged as known fraudster.")
		}
	}

	// Blend in the text-level engine when any text is present.
	if hs, ok := humanSignalFromMetadata(m); ok {
		score = math.Round(score*0.6 + float64(hs.Score)*0.4)
		if hs.Label == LabelAI || hs.Label == LabelSuspect {
			tags = append(tags, "low_human_signal")
			reasons = append(reasons, fmt.Sprintf("Micro-engine flagged as %q (%d).", hs.Label, hs.Score))
		} else {
			tags = append(tags, "strong_human_signal")
			reasons = append(reasons, fmt.Sprintf("Micro-engine supports human authenticity (%s).", hs.Label))
		}
	}

	final := clampScore(score)
	if final < HumanEffortThreshold {
		tags = append(tags, "low_effort_or_fraud")
	} else {
		tags = append(tags, "human_effort_detected")
	}

	if len(reasons) == 0 {
		reasons = []string{"No specific red flags detected."}
	}

	return Result{Score: final, Label: signalLabel(final), Tags: tags, Reasons: reasons}
}

func parseUploadDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized upload date %q", s)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func clampScore(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

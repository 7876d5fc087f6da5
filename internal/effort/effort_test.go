package effort

import (
	"errors"
	"testing"
	"time"
)

func hasTag(r Result, tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func TestScoreEmptyMetadata(t *testing.T) {
	var s Scorer
	r := s.Score(Metadata{})

	// Only the missing-description penalty applies.
	if r.Score != 95 {
		t.Errorf("score = %d, want 95", r.Score)
	}
	if !hasTag(r, "missing_description") {
		t.Errorf("tags = %v, want missing_description", r.Tags)
	}
	if !hasTag(r, "human_effort_detected") {
		t.Errorf("tags = %v, want human_effort_detected", r.Tags)
	}
	if len(r.Reasons) == 0 {
		t.Error("reasons must never be empty")
	}
	if r.Label != LabelHuman {
		t.Errorf("label = %q, want %q for score %d", r.Label, LabelHuman, r.Score)
	}
}

func TestScoreLabelTracksBands(t *testing.T) {
	var s Scorer

	// 95 after the missing-description penalty.
	if r := s.Score(Metadata{}); r.Label != LabelHuman {
		t.Errorf("label = %q (score %d), want %q", r.Label, r.Score, LabelHuman)
	}
	// Sybil plus scam interaction drags the score into the bottom band.
	r := s.Score(Metadata{Arkham: &ArkhamData{BlockchainSignals: []string{
		"sybil_activity_detected", "known_scam_address_interaction",
	}}})
	if r.Label != LabelAI {
		t.Errorf("label = %q (score %d), want %q", r.Label, r.Score, LabelAI)
	}
}

func TestScoreDisproportionateEngagement(t *testing.T) {
	var s Scorer
	r := s.Score(Metadata{FollowerCount: 5000, EngagementRate: 0.001})

	if !hasTag(r, "disproportionate_engagement") {
		t.Errorf("tags = %v, want disproportionate_engagement", r.Tags)
	}
	// Penalty is (0.01-0.001)*500 = 4.5, on top of the missing description.
	if r.Score != 91 {
		t.Errorf("score = %d, want 91", r.Score)
	}
}

func TestScoreEngagementPenaltyCaps(t *testing.T) {
	var s Scorer
	// A zero engagement rate would be a 5-point penalty; even an absurd
	// negative rate may not exceed the 20-point cap.
	r := s.Score(Metadata{FollowerCount: 5000, EngagementRate: -10})
	if r.Score != 75 {
		t.Errorf("score = %d, want 75 (capped penalty plus missing description)", r.Score)
	}
}

func TestScoreSyntheticReach(t *testing.T) {
	var s Scorer
	r := s.Score(Metadata{FollowerCount: 10, ViewCount: 20000, CommentCount: 1})

	if !hasTag(r, "synthetic_reach_inflation") {
		t.Errorf("tags = %v, want synthetic_reach_inflation", r.Tags)
	}
	// Comment gap stacks on top: 100 - 30 - 10 - 5.
	if !hasTag(r, "comment_gap") {
		t.Errorf("tags = %v, want comment_gap", r.Tags)
	}
	if r.Score != 55 {
		t.Errorf("score = %d, want 55", r.Score)
	}
	if !hasTag(r, "low_effort_or_fraud") {
		t.Errorf("tags = %v, want low_effort_or_fraud below %d", r.Tags, HumanEffortThreshold)
	}
}

func TestScoreAIDescription(t *testing.T) {
	meta := Metadata{Description: "A thorough exploration of the product landscape and its key takeaways."}

	humanScorer := Scorer{Analyzer: func(string) (bool, error) { return false, nil }}
	aiScorer := Scorer{Analyzer: func(string) (bool, error) { return true, nil }}

	clean := humanScorer.Score(meta)
	flagged := aiScorer.Score(meta)

	if !hasTag(flagged, "ai_generated_description") {
		t.Errorf("tags = %v, want ai_generated_description", flagged.Tags)
	}
	if hasTag(clean, "ai_generated_description") {
		t.Error("clean description wrongly tagged")
	}
	if flagged.Score >= clean.Score {
		t.Errorf("flagged score %d should be below clean score %d", flagged.Score, clean.Score)
	}
}

func TestScoreAnalyzerFailureDoesNotPenalize(t *testing.T) {
	meta := Metadata{Description: "Short honest words about a quiet afternoon outside."}

	failing := Scorer{Analyzer: func(string) (bool, error) { return false, errors.New("backend down") }}
	silent := Scorer{}

	got := failing.Score(meta)
	want := silent.Score(meta)

	if got.Score != want.Score {
		t.Errorf("failed analysis changed the score: %d vs %d", got.Score, want.Score)
	}
	found := false
	for _, r := range got.Reasons {
		if r == "Description AI analysis failed" {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want analysis-failure note", got.Reasons)
	}
}

func TestScoreRapidSyntheticGrowth(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := Scorer{Now: func() time.Time { return now }}

	r := s.Score(Metadata{
		UploadDate:     now.Add(-24 * time.Hour).Format(time.RFC3339),
		ViewCount:      600000,
		EngagementRate: 0.001,
	})
	if !hasTag(r, "rapid_synthetic_growth") {
		t.Errorf("tags = %v, want rapid_synthetic_growth", r.Tags)
	}

	// A week-old upload is past the anomaly window.
	old := s.Score(Metadata{
		UploadDate:     now.Add(-7 * 24 * time.Hour).Format(time.RFC3339),
		ViewCount:      600000,
		EngagementRate: 0.001,
	})
	if hasTag(old, "rapid_synthetic_growth") {
		t.Errorf("tags = %v, anomaly should not fire on old uploads", old.Tags)
	}
}

func TestScoreUnparseableUploadDateIgnored(t *testing.T) {
	var s Scorer
	r := s.Score(Metadata{UploadDate: "yesterday-ish", ViewCount: 600000})
	if hasTag(r, "rapid_synthetic_growth") {
		t.Error("garbage upload date must not trigger the anomaly check")
	}
}

func TestScoreExternalRiskFeeds(t *testing.T) {
	var s Scorer
	r := s.Score(Metadata{
		Arkham: &ArkhamData{BlockchainSignals: []string{
			"sybil_activity_detected",
			"wash_trading_pattern",
			"known_scam_address_interaction",
		}},
		Plaid: &PlaidData{
			RiskScore:        0.9,
			IdentityMismatch: true,
			BeaconSignals:    []string{"known_fraudster"},
		},
	})

	for _, tag := range []string{
		"web3_sybil_attack", "web3_wash_trading", "web3_scam_interaction",
		"plaid_high_risk", "plaid_identity_mismatch", "plaid_known_fraudster",
	} {
		if !hasTag(r, tag) {
			t.Errorf("tags = %v, missing %s", r.Tags, tag)
		}
	}
	if r.Score != 0 {
		t.Errorf("score = %d, want clamped to 0", r.Score)
	}
}

func TestScoreBlendsHumanSignal(t *testing.T) {
	var s Scorer
	r := s.Score(Metadata{
		Description: "lol nah bro that was wild fr. i swear the ending was insane!!",
	})

	if !hasTag(r, "strong_human_signal") {
		t.Errorf("tags = %v, want strong_human_signal for slangy text", r.Tags)
	}
	if r.Score < HumanEffortThreshold {
		t.Errorf("score = %d, want >= %d", r.Score, HumanEffortThreshold)
	}
}

func TestScoreLowHumanSignalTagged(t *testing.T) {
	fast := int64(400)
	var s Scorer
	r := s.Score(Metadata{
		RawText:         "Great content as always. Truly inspiring work overall.",
		Username:        "x8Kq2p9Zw4LmT3",
		LastMessageTime: &fast,
	})

	if !hasTag(r, "low_human_signal") {
		t.Errorf("tags = %v, want low_human_signal", r.Tags)
	}
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trustd/internal/detect"
	"trustd/internal/features"
	"trustd/internal/pattern"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trustd.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id string) SampleRecord {
	score := 0.7
	return SampleRecord{
		ID:              id,
		Domain:          "reddit.com",
		DeviceID:        "device-1",
		Text:            "This is a test sample with enough text to be interesting.",
		CalibratedScore: &score,
		Counts: features.Counts{
			Length:      58,
			Caps:        1,
			Punctuation: 1,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	status, err := GetMigrationStatus(s.db)
	if err != nil {
		t.Fatalf("failed to get migration status: %v", err)
	}
	if status.CurrentVersion != status.LatestVersion {
		t.Errorf("expected all migrations applied, current=%d latest=%d",
			status.CurrentVersion, status.LatestVersion)
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}
}

func TestInsertSamplesAndGet(t *testing.T) {
	s := openTestStore(t)

	n, err := s.InsertSamples([]SampleRecord{testRecord("a"), testRecord("b")})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserted, got %d", n)
	}

	got, err := s.GetSample("a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("sample not found")
	}
	if got.Domain != "reddit.com" {
		t.Errorf("domain = %q, want reddit.com", got.Domain)
	}
	if got.CalibratedScore == nil || *got.CalibratedScore != 0.7 {
		t.Errorf("calibrated score = %v, want 0.7", got.CalibratedScore)
	}
	if got.Counts.Length != 58 {
		t.Errorf("length = %d, want 58", got.Counts.Length)
	}
}

func TestInsertSamplesDuplicateIsBestEffort(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertSamples([]SampleRecord{testRecord("dup")}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// A batch containing a duplicate still inserts the fresh rows.
	n, err := s.InsertSamples([]SampleRecord{testRecord("dup"), testRecord("fresh")})
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 inserted (duplicate skipped), got %d", n)
	}
}

func TestSamplesSinceWindow(t *testing.T) {
	s := openTestStore(t)

	old := testRecord("old")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	recent := testRecord("recent")

	if _, err := s.InsertSamples([]SampleRecord{old, recent}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.SamplesSince(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 sample in window, got %d", len(got))
	}
	if got[0].ID != "recent" {
		t.Errorf("expected sample 'recent', got %q", got[0].ID)
	}
}

func TestUpdateSignatureRoundtrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertSamples([]SampleRecord{testRecord("sig")}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sig := detect.Signature{
		IsAI:       true,
		Confidence: 0.83,
		Method:     detect.MethodHybrid,
		Model:      "gpt-4",
		Markers:    []string{"excessive_transitions:3"},
		Platform:   "reddit",
		Version:    detect.Version,
	}
	if err := s.UpdateSignature("sig", sig); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := s.GetSample("sig")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Signature == nil {
		t.Fatal("signature not persisted")
	}
	if !got.Signature.IsAI || got.Signature.Confidence != 0.83 {
		t.Errorf("signature roundtrip mismatch: %+v", got.Signature)
	}
	if got.Signature.Method != detect.MethodHybrid {
		t.Errorf("method = %q, want %q", got.Signature.Method, detect.MethodHybrid)
	}
}

func TestUpdateSignatureMissingSample(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateSignature("absent", detect.Signature{})
	if err == nil {
		t.Fatal("expected error for missing sample")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func testCluster(platform string, ct pattern.ClusterType) *pattern.Cluster {
	return &pattern.Cluster{
		Platform: platform,
		Type:     ct,
		Centroid: pattern.Centroid{
			Vector: features.Vector{
				LengthAvg:       120,
				PunctuationRate: 0.03,
				Entropy:         0.8,
				Burstiness:      0.4,
			},
			LengthStd: 35,
		},
		Signature: pattern.StyleSignature{
			FunctionWords:   []string{"however", "therefore"},
			SemanticDensity: 0.6,
			CoherenceScore:  0.5,
		},
		SampleCount: 40,
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestUpsertClusterRoundtrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertCluster(testCluster("reddit", pattern.ClusterAI)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	clusters, err := s.GetClusters("reddit")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}

	c := clusters[0]
	if c.Type != pattern.ClusterAI {
		t.Errorf("type = %q, want %q", c.Type, pattern.ClusterAI)
	}
	if c.Centroid.LengthAvg != 120 || c.Centroid.LengthStd != 35 {
		t.Errorf("centroid mismatch: %+v", c.Centroid)
	}
	if len(c.Signature.FunctionWords) != 2 {
		t.Errorf("style signature not persisted: %+v", c.Signature)
	}
	if c.SampleCount != 40 {
		t.Errorf("sample count = %d, want 40", c.SampleCount)
	}
}

func TestUpsertClusterReplaces(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertCluster(testCluster("reddit", pattern.ClusterAI)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	updated := testCluster("reddit", pattern.ClusterAI)
	updated.Centroid.LengthAvg = 200
	updated.SampleCount = 80
	if err := s.UpsertCluster(updated); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	clusters, err := s.GetClusters("reddit")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster after replace, got %d", len(clusters))
	}
	if clusters[0].Centroid.LengthAvg != 200 || clusters[0].SampleCount != 80 {
		t.Errorf("replace did not take: %+v", clusters[0])
	}
}

func TestClusterSets(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertCluster(testCluster("reddit", pattern.ClusterAI)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := s.UpsertCluster(testCluster("reddit", pattern.ClusterHuman)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	sets, err := s.ClusterSets(context.Background(), []string{"reddit", "tiktok"})
	if err != nil {
		t.Fatalf("cluster sets failed: %v", err)
	}

	set, ok := sets["reddit"]
	if !ok {
		t.Fatal("reddit set missing")
	}
	if len(set) != 2 {
		t.Errorf("expected 2 centroids, got %d", len(set))
	}
	if set[pattern.ClusterAI] == nil {
		t.Error("ai centroid missing")
	}

	// Platform with no clusters must be absent, not empty.
	if _, ok := sets["tiktok"]; ok {
		t.Error("tiktok should be absent from the result")
	}
}

func TestPlatforms(t *testing.T) {
	s := openTestStore(t)

	for _, p := range []string{"reddit", "tiktok", "reddit"} {
		if err := s.UpsertCluster(testCluster(p, pattern.ClusterMixed)); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	platforms, err := s.Platforms()
	if err != nil {
		t.Fatalf("platforms failed: %v", err)
	}
	if len(platforms) != 2 {
		t.Errorf("expected 2 distinct platforms, got %v", platforms)
	}
}

func TestClusterStats(t *testing.T) {
	s := openTestStore(t)

	count, last, err := s.ClusterStats()
	if err != nil {
		t.Fatalf("stats on empty store: %v", err)
	}
	if count != 0 || !last.IsZero() {
		t.Errorf("empty store stats = %d/%v, want 0 and the zero time", count, last)
	}

	for _, ct := range []pattern.ClusterType{pattern.ClusterAI, pattern.ClusterHuman} {
		if err := s.UpsertCluster(testCluster("reddit", ct)); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	count, last, err = s.ClusterStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if last.IsZero() || time.Since(last) > time.Minute {
		t.Errorf("last rebuild = %v, want a recent timestamp", last)
	}
}

func TestDeleteSamplesBefore(t *testing.T) {
	s := openTestStore(t)

	old := testRecord("old")
	old.CreatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	recent := testRecord("recent")
	if _, err := s.InsertSamples([]SampleRecord{old, recent}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	deleted, err := s.DeleteSamplesBefore(time.Now().UTC().Add(-7 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	remaining, err := s.SamplesSince(time.Unix(0, 0))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "recent" {
		t.Errorf("unexpected remaining samples: %+v", remaining)
	}
}

func TestSampleRecordToSample(t *testing.T) {
	r := testRecord("conv")
	sample := r.ToSample()

	if sample.ID != "conv" || sample.Domain != "reddit.com" {
		t.Errorf("conversion lost identity: %+v", sample)
	}
	if sample.Counts == nil || sample.Counts.Length != 58 {
		t.Errorf("conversion lost counts: %+v", sample.Counts)
	}
	if sample.CalibratedScore == nil || *sample.CalibratedScore != 0.7 {
		t.Errorf("conversion lost calibrated score: %+v", sample.CalibratedScore)
	}
}

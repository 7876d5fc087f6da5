package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"trustd/internal/config"
	"trustd/internal/detect"
	"trustd/internal/effort"
	"trustd/internal/health"
	"trustd/internal/logging"
	"trustd/internal/metrics"
	"trustd/internal/store"
)

type fakeStore struct {
	records   []store.SampleRecord
	insertErr error
}

func (f *fakeStore) InsertSamples(records []store.SampleRecord) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.records = append(f.records, records...)
	return len(records), nil
}

type fakeAnalyzer struct {
	results func(samples []*detect.Sample) []detect.Result
	panics  bool
}

func (f *fakeAnalyzer) Run(ctx context.Context, samples []*detect.Sample) []detect.Result {
	if f.panics {
		panic("analyzer blew up")
	}
	if f.results != nil {
		return f.results(samples)
	}
	out := make([]detect.Result, len(samples))
	for i, sm := range samples {
		out[i] = detect.Result{
			Sample: sm,
			Signature: detect.Signature{
				IsAI:         false,
				Confidence:   0.5,
				Method:       detect.MethodHybrid,
				Model:        "unknown",
				Markers:      []string{},
				SourceScores: map[string]float64{},
				Version:      detect.Version,
			},
		}
	}
	return out
}

type fakeScanner struct{ score float64 }

func (f *fakeScanner) Score(string) float64 { return f.score }

type testServer struct {
	*Server
	store    *fakeStore
	analyzer *fakeAnalyzer
	metrics  *metrics.TrustdMetrics
	checker  *health.Checker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	audit, err := logging.NewAuditLogger(&logging.AuditLoggerConfig{
		FilePath:  filepath.Join(t.TempDir(), "audit.log"),
		MaxSize:   1,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("audit logger: %v", err)
	}

	st := &fakeStore{}
	an := &fakeAnalyzer{}
	reg := metrics.NewRegistry("trustd", "")
	m := metrics.NewTrustdMetrics(reg)
	checker := health.NewChecker()

	effortScorer := &effort.Scorer{}
	srv := NewServer(Options{
		Config:   config.ServerConfig{MaxBodyBytes: 1 << 20, ShutdownTimeoutSec: 1},
		Store:    st,
		Detector: an,
		Scanner:  &fakeScanner{score: 0.42},
		Effort:   effortScorer.Score,
		Checker:  checker,
		Registry: reg,
		Metrics:  m,
		Audit:    audit,
	})
	return &testServer{Server: srv, store: st, analyzer: an, metrics: m, checker: checker}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogsInsertsValidSamples(t *testing.T) {
	ts := newTestServer(t)
	h := ts.Handler()

	rec := postJSON(t, h, "/api/v1/logs", `{"samples": [
		{"text": "first sample text", "domain": "reddit.com", "deviceId": "dev-1"},
		{"text": "second sample text", "calibratedScore": 0.8}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp logsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Received != 2 || resp.Inserted != 2 || resp.Skipped != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(ts.store.records) != 2 {
		t.Fatalf("stored %d records", len(ts.store.records))
	}
	if ts.store.records[0].ID == "" {
		t.Error("missing id should be filled with a generated one")
	}
	if ts.store.records[0].Counts.Length == 0 {
		t.Error("counts should be extracted at ingest")
	}
	if v := ts.metrics.SamplesIngested.Value(); v != 2 {
		t.Errorf("samples metric = %d", v)
	}
}

func TestLogsSkipsInvalidItems(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.Handler(), "/api/v1/logs", `{"samples": [
		{"text": "good sample"},
		{"domain": "reddit.com"},
		{"text": ""}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp logsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Received != 3 || resp.Inserted != 1 || resp.Skipped != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestLogsRejectsMalformedEnvelope(t *testing.T) {
	ts := newTestServer(t)
	for _, body := range []string{`{}`, `{"samples": []}`, `not json`} {
		rec := postJSON(t, ts.Handler(), "/api/v1/logs", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, rec.Code)
		}
	}
}

func TestLogsStorageFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.store.insertErr = errors.New("disk full")
	rec := postJSON(t, ts.Handler(), "/api/v1/logs", `{"samples": [{"text": "hello"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if v := ts.metrics.RequestErrors.Value(); v != 1 {
		t.Errorf("request errors = %d", v)
	}
}

func TestScanScoresItems(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.Handler(), "/api/v1/scan", `{"items": [
		{"id": "a", "text": "one"},
		{"id": "b", "text": "two"}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp scanResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].ID != "a" || resp.Results[0].Score != 0.42 {
		t.Errorf("result[0] = %+v", resp.Results[0])
	}
}

func TestScanRejectsEmpty(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.Handler(), "/api/v1/scan", `{"items": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAnalyzeReturnsSignatures(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.Handler(), "/api/v1/analyze", `{"samples": [
		{"id": "s1", "domain": "reddit.com", "text": "some text to analyze"}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	got := resp.Results[0]
	if got.ID != "s1" {
		t.Errorf("id = %q", got.ID)
	}
	if got.Signature.Method != detect.MethodHybrid {
		t.Errorf("method = %q", got.Signature.Method)
	}
	if got.Error != "" {
		t.Errorf("error = %q", got.Error)
	}
	if v := ts.metrics.DetectionsHybrid.Value(); v != 1 {
		t.Errorf("hybrid detections metric = %d", v)
	}
}

func TestAnalyzeSurfacesPerItemErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.analyzer.results = func(samples []*detect.Sample) []detect.Result {
		out := make([]detect.Result, len(samples))
		for i, sm := range samples {
			out[i] = detect.Result{
				Sample:    sm,
				Signature: detect.TooShortSignature(),
				Err:       errors.New("llm unreachable"),
			}
		}
		return out
	}

	rec := postJSON(t, ts.Handler(), "/api/v1/analyze", `{"samples": [{"text": "x"}]}`)
	var resp analyzeResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Results[0].Error != "llm unreachable" {
		t.Errorf("error = %q", resp.Results[0].Error)
	}
	// The verdict is still usable even when refinement failed.
	if resp.Results[0].Signature.Method != detect.MethodTooShort {
		t.Errorf("method = %q", resp.Results[0].Signature.Method)
	}
}

func TestAnalyzeNormalizesCalibratedPrior(t *testing.T) {
	ts := newTestServer(t)
	var seen []*detect.Sample
	ts.analyzer.results = func(samples []*detect.Sample) []detect.Result {
		seen = samples
		out := make([]detect.Result, len(samples))
		for i, sm := range samples {
			out[i] = detect.Result{Sample: sm, Signature: detect.TooShortSignature()}
		}
		return out
	}

	rec := postJSON(t, ts.Handler(), "/api/v1/analyze", `{"samples": [
		{"id": "pct", "text": "scored on the effort scale", "calibratedScore": 75},
		{"id": "unit", "text": "scored on the unit scale", "calibratedScore": 0.8},
		{"id": "none", "text": "no prior at all"}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(seen) != 3 {
		t.Fatalf("analyzer saw %d samples", len(seen))
	}
	if got := *seen[0].CalibratedScore; got != 0.75 {
		t.Errorf("0-100 prior = %v, want 0.75", got)
	}
	if got := *seen[1].CalibratedScore; got != 0.8 {
		t.Errorf("unit prior = %v, want 0.8 unchanged", got)
	}
	if seen[2].CalibratedScore != nil {
		t.Errorf("absent prior = %v, want nil", *seen[2].CalibratedScore)
	}
}

func TestScoreRunsEffortRecipe(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.Handler(), "/api/v1/score", `{
		"followerCount": 100000,
		"viewCount": 50000,
		"commentCount": 2
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp scoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Score < 0 || resp.Score > 100 {
		t.Errorf("score = %d", resp.Score)
	}
	if resp.Label == "" {
		t.Error("expected a band label on the verdict")
	}
	if len(resp.Tags) == 0 {
		t.Error("expected a verdict tag")
	}
	if v := ts.metrics.EffortScores.Value(); v != 1 {
		t.Errorf("effort metric = %d", v)
	}
}

func TestPanicRecovered(t *testing.T) {
	ts := newTestServer(t)
	ts.analyzer.panics = true
	rec := postJSON(t, ts.Handler(), "/api/v1/analyze", `{"samples": [{"text": "boom"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan",
		strings.NewReader(`{"items": [{"id": "a", "text": "x"}]}`))
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.Handler(), "/api/v1/scan", `{"items": [{"id": "a", "text": "x"}]}`)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing generated request id")
	}
}

func TestBodyLimitEnforced(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.MaxBodyBytes = 64
	body := `{"samples": [{"text": "` + strings.Repeat("a", 256) + `"}]}`
	rec := postJSON(t, ts.Handler(), "/api/v1/logs", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthEndpointsWired(t *testing.T) {
	ts := newTestServer(t)
	h := ts.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := get("/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready = %d", rec.Code)
	}
	ts.checker.SetReady(true)
	if rec := get("/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz after ready = %d", rec.Code)
	}

	rec := get("/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "trustd_") {
		t.Errorf("metrics body missing trustd metrics:\n%s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"trustd/internal/detect"
	"trustd/internal/effort"
	"trustd/internal/features"
	"trustd/internal/schemavalidation"
	"trustd/internal/store"
)

// EffortFunc evaluates account metadata against the effort recipe.
type EffortFunc func(m effort.Metadata) effort.Result

type logSample struct {
	ID              string   `json:"id"`
	Domain          string   `json:"domain"`
	DeviceID        string   `json:"deviceId"`
	Text            string   `json:"text"`
	CalibratedScore *float64 `json:"calibratedScore"`
	CreatedAt       string   `json:"createdAt"`
}

type logsRequest struct {
	Samples []json.RawMessage `json:"samples"`
}

type logsResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// handleLogs ingests a batch of captured samples. Items failing validation
// are skipped; the batch never aborts on a bad item.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if err := schemavalidation.ValidateLogBatch(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req logsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "decode batch: "+err.Error())
		return
	}

	now := time.Now().UTC()
	records := make([]store.SampleRecord, 0, len(req.Samples))
	deviceID := ""
	for _, raw := range req.Samples {
		if err := schemavalidation.ValidateLogSample(raw); err != nil {
			s.log.WithContext(r.Context()).Debug("sample rejected", "error", err)
			continue
		}
		var item logSample
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		rec := store.SampleRecord{
			ID:              item.ID,
			Domain:          item.Domain,
			DeviceID:        item.DeviceID,
			Text:            item.Text,
			CalibratedScore: item.CalibratedScore,
			Counts:          features.Count(item.Text),
			CreatedAt:       now,
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if item.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
				rec.CreatedAt = ts.UTC()
			}
		}
		if deviceID == "" {
			deviceID = rec.DeviceID
		}
		records = append(records, rec)
	}

	inserted, err := s.store.InsertSamples(records)
	if err != nil {
		s.log.WithContext(r.Context()).Error("insert samples", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	s.metrics.RecordSamples(inserted)
	if err := s.audit.LogIngestBatch(r.Context(), deviceID, len(req.Samples), inserted); err != nil {
		s.log.WithContext(r.Context()).Warn("audit ingest batch", "error", err)
	}

	writeJSON(w, http.StatusOK, logsResponse{
		Received: len(req.Samples),
		Inserted: inserted,
		Skipped:  len(req.Samples) - inserted,
	})
}

type scanItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type scanRequest struct {
	Items []scanItem `json:"items"`
}

type scanResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type scanResponse struct {
	Results []scanResult `json:"results"`
}

// handleScan scores raw text with the live calibrator. This is the cheap
// path used by capture clients between full analyses.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "no items")
		return
	}

	results := make([]scanResult, len(req.Items))
	for i, item := range req.Items {
		results[i] = scanResult{ID: item.ID, Score: s.scanner.Score(item.Text)}
	}
	writeJSON(w, http.StatusOK, scanResponse{Results: results})
}

type analyzeSample struct {
	ID              string   `json:"id"`
	Domain          string   `json:"domain"`
	DeviceID        string   `json:"deviceId"`
	Text            string   `json:"text"`
	CalibratedScore *float64 `json:"calibratedScore"`
}

type analyzeRequest struct {
	Samples []analyzeSample `json:"samples"`
}

type analyzeResult struct {
	ID        string           `json:"id"`
	Signature detect.Signature `json:"signature"`
	Error     string           `json:"error,omitempty"`
}

type analyzeResponse struct {
	Results []analyzeResult `json:"results"`
}

// handleAnalyze runs the full detection pipeline synchronously.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeError(w, http.StatusServiceUnavailable, "detector not configured")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "no samples")
		return
	}

	samples := make([]*detect.Sample, len(req.Samples))
	for i, in := range req.Samples {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		samples[i] = &detect.Sample{
			ID:              id,
			Domain:          in.Domain,
			DeviceID:        in.DeviceID,
			Text:            in.Text,
			CalibratedScore: in.CalibratedScore,
		}
		// Effort-recipe clients report priors on a 0-100 scale; bring
		// them onto [0, 1] before they enter fusion.
		if in.CalibratedScore != nil {
			prior := detect.NormalizeCalibrated(*in.CalibratedScore)
			samples[i].CalibratedScore = &prior
		}
	}

	start := time.Now()
	results := s.detector.Run(r.Context(), samples)
	perSample := time.Duration(0)
	if len(results) > 0 {
		perSample = time.Since(start) / time.Duration(len(results))
	}

	out := analyzeResponse{Results: make([]analyzeResult, len(results))}
	escalated := 0
	for i, res := range results {
		s.metrics.RecordDetection(res.Signature.Method, len(res.Sample.Text), perSample)
		if res.Signature.Method == detect.MethodLLM {
			escalated++
		}
		out.Results[i] = analyzeResult{ID: res.Sample.ID, Signature: res.Signature}
		if res.Err != nil {
			out.Results[i].Error = res.Err.Error()
		}
	}

	if err := s.audit.LogDetectionRun(r.Context(), len(results), escalated); err != nil {
		s.log.WithContext(r.Context()).Warn("audit detection run", "error", err)
	}
	writeJSON(w, http.StatusOK, out)
}

type scoreResponse struct {
	Score   int      `json:"score"`
	Label   string   `json:"label"`
	Tags    []string `json:"tags"`
	Reasons []string `json:"reasons"`
}

// handleScore evaluates account metadata with the effort recipe.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if s.effort == nil {
		writeError(w, http.StatusServiceUnavailable, "effort scorer not configured")
		return
	}

	var meta effort.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "decode metadata: "+err.Error())
		return
	}

	res := s.effort(meta)
	s.metrics.RecordEffortScore()
	writeJSON(w, http.StatusOK, scoreResponse{
		Score:   res.Score,
		Label:   res.Label,
		Tags:    res.Tags,
		Reasons: res.Reasons,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

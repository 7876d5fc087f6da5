// Package api exposes the detection daemon over HTTP: bulk log ingestion,
// live calibrated scanning, full pipeline analysis, effort scoring, and the
// health and metrics endpoints.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"trustd/internal/config"
	"trustd/internal/detect"
	"trustd/internal/health"
	"trustd/internal/logging"
	"trustd/internal/metrics"
	"trustd/internal/store"
)

// Analyzer runs the detection pipeline over a batch of samples.
type Analyzer interface {
	Run(ctx context.Context, samples []*detect.Sample) []detect.Result
}

// SampleStore is the slice of the store the API writes through.
type SampleStore interface {
	InsertSamples(records []store.SampleRecord) (int, error)
}

// LiveScorer produces a calibrated score for raw text.
type LiveScorer interface {
	Score(text string) float64
}

// Server wires the HTTP surface to the daemon's components.
type Server struct {
	cfg      config.ServerConfig
	store    SampleStore
	detector Analyzer
	scanner  LiveScorer
	effort   EffortFunc
	checker  *health.Checker
	registry *metrics.Registry
	metrics  *metrics.TrustdMetrics
	audit    *logging.AuditLogger
	log      *logging.Logger

	httpServer *http.Server
}

// Options carries the dependencies for a Server. Nil optional fields
// disable the matching endpoint with 503 rather than panicking.
type Options struct {
	Config   config.ServerConfig
	Store    SampleStore
	Detector Analyzer
	Scanner  LiveScorer
	Effort   EffortFunc
	Checker  *health.Checker
	Registry *metrics.Registry
	Metrics  *metrics.TrustdMetrics
	Audit    *logging.AuditLogger
	Log      *logging.Logger
}

// NewServer builds a Server from its dependencies.
func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	if opts.Checker == nil {
		opts.Checker = health.NewChecker()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.GetMetrics()
	}
	if opts.Audit == nil {
		opts.Audit = logging.DefaultAuditLogger()
	}
	return &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		detector: opts.Detector,
		scanner:  opts.Scanner,
		effort:   opts.Effort,
		checker:  opts.Checker,
		registry: opts.Registry,
		metrics:  opts.Metrics,
		audit:    opts.Audit,
		log:      opts.Log.WithComponent("api"),
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/logs", s.instrument(http.HandlerFunc(s.handleLogs)))
	mux.Handle("POST /api/v1/scan", s.instrument(http.HandlerFunc(s.handleScan)))
	mux.Handle("POST /api/v1/analyze", s.instrument(http.HandlerFunc(s.handleAnalyze)))
	mux.Handle("POST /api/v1/score", s.instrument(http.HandlerFunc(s.handleScore)))

	mux.Handle("GET /healthz", s.checker.LivenessHandler())
	mux.Handle("GET /readyz", s.checker.ReadinessHandler())
	mux.Handle("GET /health", s.checker.HealthHandler())
	mux.Handle("GET /metrics", s.registry.HTTPHandler())

	return mux
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests within the configured shutdown window.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.Info("http server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// statusRecorder captures the response code for metrics and access logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument applies the request ID, body limit, panic recovery, and
// metrics bookkeeping shared by the API endpoints.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = s.log.NewRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)

		if s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		s.metrics.RequestStarted()

		defer func() {
			if v := recover(); v != nil {
				s.log.WithRequestID(requestID).Error("handler panic",
					"path", r.URL.Path, "panic", v)
				s.metrics.RecordError()
				if rec.status == http.StatusOK {
					http.Error(rec, "internal error", http.StatusInternalServerError)
				}
				rec.status = http.StatusInternalServerError
			}
			s.metrics.RequestFinished(rec.status, time.Since(start))
			s.log.WithRequestID(requestID).Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(rec.status),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		next.ServeHTTP(rec, r)
	})
}

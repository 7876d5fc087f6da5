package detect

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"trustd/internal/features"
	"trustd/internal/logging"
	"trustd/internal/metrics"
	"trustd/internal/pattern"
)

// DefaultLLMBatchSize bounds how many uncertain samples are refined per
// throttle window. Items within a batch run sequentially to respect the
// external service's rate limits.
const DefaultLLMBatchSize = 6

// DefaultLLMPause is the minimum spacing between refinement batches.
const DefaultLLMPause = 120 * time.Millisecond

// CentroidSource supplies the persisted cluster centroids for a set of
// platforms. The detector treats a missing platform as "no pattern yet",
// never as an error.
type CentroidSource interface {
	ClusterSets(ctx context.Context, platforms []string) (map[string]pattern.ClusterSet, error)
}

// LLMResult is the external classifier's verdict for one text.
type LLMResult struct {
	IsAI       bool
	Confidence float64
	Model      string
	Markers    []string
}

// Classifier escalates a text to an external classification service.
type Classifier interface {
	Classify(ctx context.Context, text string) (LLMResult, error)
}

// Result pairs a sample with its signature. Err is non-nil when the LLM
// refinement for this item failed; the signature then holds the preliminary
// hybrid result, so a Result always carries a usable verdict.
type Result struct {
	Sample    *Sample
	Signature Signature
	Err       error
}

// Options tunes a Detector.
type Options struct {
	// PlatformHint overrides per-sample platform derivation when set.
	PlatformHint string
	// LLMEnabled turns on refinement of uncertain scores. Ignored when
	// the detector has no classifier.
	LLMEnabled bool
	// LLMBatchSize defaults to DefaultLLMBatchSize when <= 0.
	LLMBatchSize int
	// LLMPause defaults to DefaultLLMPause when <= 0.
	LLMPause time.Duration
	// Heuristic overrides the stock-phrase list when non-nil.
	Heuristic *HeuristicScorer
	// Metrics overrides the process-wide instance when non-nil.
	Metrics *metrics.TrustdMetrics
}

// Detector runs the tiered detection pipeline over batches of samples.
type Detector struct {
	patterns   CentroidSource
	classifier Classifier
	heuristic  *HeuristicScorer
	limiter    *rate.Limiter
	metrics    *metrics.TrustdMetrics
	opts       Options
	log        *logging.Logger
}

// New creates a Detector. Either dependency may be nil: a nil patterns
// source disables the pattern tier, a nil classifier disables refinement.
func New(patterns CentroidSource, classifier Classifier, opts Options, log *logging.Logger) *Detector {
	if opts.LLMBatchSize <= 0 {
		opts.LLMBatchSize = DefaultLLMBatchSize
	}
	if opts.LLMPause <= 0 {
		opts.LLMPause = DefaultLLMPause
	}
	heuristic := opts.Heuristic
	if heuristic == nil {
		heuristic = &HeuristicScorer{}
	}
	if log == nil {
		log = logging.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.GetMetrics()
	}
	return &Detector{
		patterns:   patterns,
		classifier: classifier,
		heuristic:  heuristic,
		limiter:    rate.NewLimiter(rate.Every(opts.LLMPause), 1),
		metrics:    m,
		opts:       opts,
		log:        log,
	}
}

type pending struct {
	idx     int
	text    string
	prelim  Signature
	confid  float64
	markers []string
}

// Run scores every sample and returns one Result per input, in order.
// Samples are scored independently; only LLM refinement suspends.
func (d *Detector) Run(ctx context.Context, samples []*Sample) []Result {
	if len(samples) == 0 {
		return nil
	}

	clusterSets := d.loadClusterSets(ctx, samples)

	results := make([]Result, len(samples))
	var uncertain []pending

	for i, s := range samples {
		results[i].Sample = s

		text := strings.TrimSpace(s.Text)
		if len(text) < MinTextLen {
			results[i].Signature = TooShortSignature()
			continue
		}

		platform := d.opts.PlatformHint
		if platform == "" {
			platform = Platform(s.Domain)
		}

		hRes := d.heuristic.Score(text)
		rRes := Rhythm(text)

		fv := features.Extract(text, s.Counts)
		pRes := pattern.Compare(clusterSets[platform], fv)

		calibrated := 0.5
		if s.CalibratedScore != nil {
			calibrated = features.Clamp01(*s.CalibratedScore)
		}

		fused := Fuse(hRes, rRes, pRes, calibrated)

		markers := make([]string, 0, len(hRes.Markers)+len(rRes.Markers)+len(pRes.Markers)+1)
		markers = append(markers, hRes.Markers...)
		markers = append(markers, rRes.Markers...)
		markers = append(markers, pRes.Markers...)
		markers = append(markers, calibratedMarker(calibrated))

		sig := Signature{
			IsAI:         fused.Combined >= AIThreshold,
			Confidence:   fused.Combined,
			Method:       MethodHybrid,
			Model:        GuessModel(text, markers),
			Markers:      markers,
			Platform:     platform,
			SourceScores: fused.Sources,
			Version:      Version,
		}

		// Confident either way: finalize locally.
		if sig.IsAI && fused.Combined >= ConfidentAIMin {
			results[i].Signature = sig
			continue
		}
		if !sig.IsAI && fused.Combined <= ConfidentHumanMax {
			results[i].Signature = sig
			continue
		}

		if d.llmEnabled() && fused.Combined >= UncertainLow && fused.Combined <= UncertainHigh {
			uncertain = append(uncertain, pending{idx: i, text: text, prelim: sig})
			continue
		}

		results[i].Signature = sig
	}

	if len(uncertain) > 0 {
		d.refine(ctx, uncertain, results)
	}

	return results
}

func (d *Detector) llmEnabled() bool {
	return d.opts.LLMEnabled && d.classifier != nil
}

func (d *Detector) loadClusterSets(ctx context.Context, samples []*Sample) map[string]pattern.ClusterSet {
	if d.patterns == nil {
		return nil
	}

	seen := make(map[string]bool)
	var platforms []string
	for _, s := range samples {
		p := d.opts.PlatformHint
		if p == "" {
			p = Platform(s.Domain)
		}
		if !seen[p] {
			seen[p] = true
			platforms = append(platforms, p)
		}
	}

	sets, err := d.patterns.ClusterSets(ctx, platforms)
	if err != nil {
		// Missing centroids are never fatal; the pattern weight drops out.
		d.log.Warn("centroid load failed, pattern tier disabled for this pass", "error", err)
		return nil
	}
	return sets
}

// refine escalates uncertain samples to the external classifier in small
// sequential batches. A failed call aborts only its own item.
func (d *Detector) refine(ctx context.Context, items []pending, results []Result) {
	d.log.Info("escalating uncertain samples to llm", "count", len(items))

	batchSize := d.opts.LLMBatchSize
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		if start > 0 {
			if err := d.limiter.Wait(ctx); err != nil {
				// Context cancelled: every remaining item keeps its
				// preliminary result.
				for _, item := range items[start:] {
					results[item.idx].Signature = item.prelim
					results[item.idx].Err = err
				}
				return
			}
		}

		for _, item := range items[start:end] {
			callStart := time.Now()
			llmRes, err := d.classifier.Classify(ctx, item.text)
			d.metrics.RecordLLMCall(time.Since(callStart), err == nil)
			if err != nil {
				d.log.Error("llm refinement failed, keeping hybrid result", "error", err)
				results[item.idx].Signature = item.prelim
				results[item.idx].Err = err
				continue
			}
			results[item.idx].Signature = mergeLLM(item.prelim, llmRes)
		}
	}
}

func calibratedMarker(v float64) string {
	return "calibrated:" + strconv.FormatFloat(v, 'f', 2, 64)
}

// mergeLLM folds the external verdict into the preliminary hybrid result,
// averaging the two confidences and replacing the method tag.
func mergeLLM(prelim Signature, llm LLMResult) Signature {
	merged := features.Clamp01(0.5*prelim.Confidence + 0.5*llm.Confidence)

	model := llm.Model
	if model == "" {
		model = prelim.Model
	}

	markers := make([]string, 0, len(prelim.Markers)+len(llm.Markers))
	markers = append(markers, prelim.Markers...)
	markers = append(markers, llm.Markers...)

	sources := make(map[string]float64, len(prelim.SourceScores)+1)
	for k, v := range prelim.SourceScores {
		sources[k] = v
	}
	sources["llm"] = llm.Confidence

	return Signature{
		IsAI:         merged >= AIThreshold,
		Confidence:   merged,
		Method:       MethodLLM,
		Model:        model,
		Markers:      markers,
		Platform:     prelim.Platform,
		SourceScores: sources,
		Version:      prelim.Version,
	}
}

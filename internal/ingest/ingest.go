// Package ingest implements the nightly training pipeline that folds the
// day's samples into per-platform pattern clusters.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trustd/internal/detect"
	"trustd/internal/logging"
	"trustd/internal/pattern"
	"trustd/internal/store"
)

// DefaultWindow is how far back a run reaches for samples.
const DefaultWindow = 24 * time.Hour

// Bucket thresholds on the calibrated score. Samples without a calibrated
// score fall into no bucket at all.
const (
	humanScoreMin = 0.7
	aiScoreMax    = 0.3
)

// Storage is the slice of the sample store the ingestor needs.
type Storage interface {
	SamplesSince(cutoff time.Time) ([]store.SampleRecord, error)
	UpdateSignature(id string, sig detect.Signature) error
	GetClusters(platform string) ([]pattern.Cluster, error)
	UpsertCluster(c *pattern.Cluster) error
}

// Scorer runs the detection pipeline over a batch.
type Scorer interface {
	Run(ctx context.Context, samples []*detect.Sample) []detect.Result
}

// Report summarizes one ingestion run.
type Report struct {
	Window          time.Duration
	SamplesSeen     int
	SamplesScored   int
	Platforms       int
	ClustersUpdated int
	Errors          []error
}

// Err collapses the run's accumulated errors into one, or nil.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

// Job is a single-shot ingestion pipeline, typically run from cron.
type Job struct {
	storage  Storage
	detector Scorer
	window   time.Duration
	now      func() time.Time
	log      *logging.Logger
}

// NewJob creates an ingestion job. A nil detector skips the scoring pass
// and clusters only already-scored samples.
func NewJob(storage Storage, detector Scorer, window time.Duration, log *logging.Logger) *Job {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = logging.Default()
	}
	return &Job{
		storage:  storage,
		detector: detector,
		window:   window,
		now:      time.Now,
		log:      log,
	}
}

// Run executes one full ingestion pass. Failures in one platform bucket
// never abort the others; everything that went wrong is collected in the
// report.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	report := &Report{Window: j.window}

	cutoff := j.now().UTC().Add(-j.window)
	records, err := j.storage.SamplesSince(cutoff)
	if err != nil {
		return report, fmt.Errorf("load samples: %w", err)
	}
	report.SamplesSeen = len(records)

	j.log.Info("starting pattern ingestion", "samples", len(records), "window", j.window.String())

	if j.detector != nil {
		j.scoreUnsigned(ctx, records, report)
	}

	groups := groupByPlatform(records)
	report.Platforms = len(groups)

	for platform, group := range groups {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err)
			break
		}
		updated, errs := j.processPlatform(platform, group)
		report.ClustersUpdated += updated
		report.Errors = append(report.Errors, errs...)
	}

	j.log.Info("pattern ingestion complete",
		"platforms", report.Platforms,
		"clusters_updated", report.ClustersUpdated,
		"errors", len(report.Errors))

	return report, report.Err()
}

// scoreUnsigned runs detection over samples that have no stored verdict
// yet and persists the results.
func (j *Job) scoreUnsigned(ctx context.Context, records []store.SampleRecord, report *Report) {
	var pendingIdx []int
	var samples []*detect.Sample
	for i := range records {
		if records[i].Signature != nil {
			continue
		}
		pendingIdx = append(pendingIdx, i)
		samples = append(samples, records[i].ToSample())
	}
	if len(samples) == 0 {
		return
	}

	results := j.detector.Run(ctx, samples)
	for k, res := range results {
		i := pendingIdx[k]
		sig := res.Signature
		if err := j.storage.UpdateSignature(records[i].ID, sig); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("save signature %s: %w", records[i].ID, err))
			continue
		}
		records[i].Signature = &sig
		report.SamplesScored++
	}
}

// processPlatform splits one platform's samples into score buckets and
// rebuilds the cluster for each non-empty bucket.
func (j *Job) processPlatform(platform string, records []store.SampleRecord) (int, []error) {
	buckets := map[pattern.ClusterType][]store.SampleRecord{
		pattern.ClusterHuman: nil,
		pattern.ClusterAI:    nil,
		pattern.ClusterMixed: nil,
	}

	for _, r := range records {
		// No calibrated score means no bucket: the thresholds are
		// defined on the calibrated scale only.
		if r.CalibratedScore == nil {
			continue
		}
		score := *r.CalibratedScore
		switch {
		case score >= humanScoreMin:
			buckets[pattern.ClusterHuman] = append(buckets[pattern.ClusterHuman], r)
		case score < aiScoreMax:
			buckets[pattern.ClusterAI] = append(buckets[pattern.ClusterAI], r)
		default:
			buckets[pattern.ClusterMixed] = append(buckets[pattern.ClusterMixed], r)
		}
	}

	updated := 0
	var errs []error
	for _, ct := range pattern.ClusterTypes {
		bucket := buckets[ct]
		if len(bucket) == 0 {
			continue
		}
		if err := j.updateCluster(ct, platform, bucket); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", platform, ct, err))
			continue
		}
		updated++
		j.log.Debug("cluster updated", "platform", platform, "type", string(ct), "samples", len(bucket))
	}

	return updated, errs
}

// updateCluster folds a bucket into its persisted cluster. An existing
// cluster is merged with a sample-count weighted average; a missing one
// is created fresh.
func (j *Job) updateCluster(ct pattern.ClusterType, platform string, bucket []store.SampleRecord) error {
	centroid := computeCentroid(bucket)
	signature := computeSignature(bucket)

	existing, err := j.storage.GetClusters(platform)
	if err != nil {
		return fmt.Errorf("load clusters: %w", err)
	}

	var prev *pattern.Cluster
	for i := range existing {
		if existing[i].Type == ct {
			prev = &existing[i]
			break
		}
	}

	next := pattern.Cluster{
		Platform:    platform,
		Type:        ct,
		Centroid:    centroid,
		Signature:   signature,
		SampleCount: int64(len(bucket)),
		UpdatedAt:   j.now().UTC(),
	}

	if prev != nil {
		total := prev.SampleCount + int64(len(bucket))
		oldW := float64(prev.SampleCount) / float64(total)
		newW := float64(len(bucket)) / float64(total)
		next.Centroid = mergeCentroids(prev.Centroid, centroid, oldW, newW)
		next.SampleCount = total
	}

	if err := j.storage.UpsertCluster(&next); err != nil {
		return fmt.Errorf("persist cluster: %w", err)
	}

	return nil
}

func groupByPlatform(records []store.SampleRecord) map[string][]store.SampleRecord {
	groups := make(map[string][]store.SampleRecord)
	for _, r := range records {
		p := detect.Platform(r.Domain)
		groups[p] = append(groups[p], r)
	}
	return groups
}

func mergeCentroids(old, new pattern.Centroid, oldW, newW float64) pattern.Centroid {
	var m pattern.Centroid
	m.LengthAvg = old.LengthAvg*oldW + new.LengthAvg*newW
	m.LengthStd = old.LengthStd*oldW + new.LengthStd*newW
	m.PunctuationRate = old.PunctuationRate*oldW + new.PunctuationRate*newW
	m.CapsRate = old.CapsRate*oldW + new.CapsRate*newW
	m.EmojiRate = old.EmojiRate*oldW + new.EmojiRate*newW
	m.DigitRate = old.DigitRate*oldW + new.DigitRate*newW
	m.URLRate = old.URLRate*oldW + new.URLRate*newW
	m.Entropy = old.Entropy*oldW + new.Entropy*newW
	m.Burstiness = old.Burstiness*oldW + new.Burstiness*newW
	return m
}

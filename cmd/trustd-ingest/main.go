// trustd-ingest - one-shot pattern cluster builder
//
// Reads the recent sample window from the store, scores anything the daemon
// has not signed yet, and rebuilds the per-platform pattern centroids. Meant
// to run nightly from cron or a systemd timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustd/internal/config"
	"trustd/internal/detect"
	"trustd/internal/ingest"
	"trustd/internal/logging"
	"trustd/internal/metrics"
	"trustd/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: XDG config dir)")
		dbPath     = flag.String("db", "", "database path override")
		windowFlag = flag.Duration("window", 0, "sample window override (e.g. 24h)")
		skipScore  = flag.Bool("skip-scoring", false, "cluster only already-scored samples")
		quiet      = flag.Bool("quiet", false, "suppress the report summary on stdout")
	)
	flag.Parse()

	if err := run(*configPath, *dbPath, *windowFlag, *skipScore, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "trustd-ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath string, window time.Duration, skipScore, quiet bool) error {
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if window <= 0 {
		window = time.Duration(cfg.Ingest.WindowHours) * time.Hour
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	log, err := logging.New(&logging.Config{
		Level:     logging.LevelInfo,
		Output:    "stderr",
		Component: "trustd-ingest",
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)
	defer logging.RecoverPanic()

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scorer ingest.Scorer
	if !skipScore && cfg.Ingest.ScoreUnsigned {
		scorer = detect.New(db, nil, detect.Options{
			PlatformHint: cfg.Detection.PlatformHint,
		}, log)
	}

	m := metrics.GetMetrics()
	job := ingest.NewJob(db, scorer, window, log)
	runStart := time.Now()
	report, err := job.Run(ctx)
	m.RecordIngestRun(time.Since(runStart), report.ClustersUpdated,
		err != nil || report.Err() != nil)
	if count, _, statErr := db.ClusterStats(); statErr == nil {
		m.SetClusterCount(count)
	}

	if err == nil && cfg.Storage.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Storage.RetentionDays)
		pruned, pruneErr := db.DeleteSamplesBefore(cutoff)
		if pruneErr != nil {
			log.Error("prune old samples", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("pruned old samples", "count", pruned, "cutoff", cutoff)
		}
	}

	audit := logging.DefaultAuditLogger()
	defer audit.Close()
	runErr := err
	if runErr == nil {
		runErr = report.Err()
	}
	if auditErr := audit.LogClusterBuild(context.Background(),
		report.Platforms, report.ClustersUpdated, runErr); auditErr != nil {
		log.Warn("audit cluster build", "error", auditErr)
	}

	if err != nil {
		return fmt.Errorf("ingest run: %w", err)
	}

	if !quiet {
		fmt.Printf("window:           %s\n", report.Window)
		fmt.Printf("samples seen:     %d\n", report.SamplesSeen)
		fmt.Printf("samples scored:   %d\n", report.SamplesScored)
		fmt.Printf("platforms:        %d\n", report.Platforms)
		fmt.Printf("clusters updated: %d\n", report.ClustersUpdated)
		if len(report.Errors) > 0 {
			fmt.Printf("errors:           %d\n", len(report.Errors))
		}
	}

	if rerr := report.Err(); rerr != nil {
		log.Error("ingest finished with errors", "error", rerr)
		// Partial failure still updated some clusters; exit nonzero so
		// the scheduler notices.
		return fmt.Errorf("ingest completed with %d errors", len(report.Errors))
	}

	log.Info("ingest complete",
		"samples", report.SamplesSeen,
		"scored", report.SamplesScored,
		"clusters", report.ClustersUpdated)
	return nil
}

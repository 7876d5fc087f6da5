// trustd - AI-text signature detection daemon
//
// trustd serves the detection API over HTTP: bulk sample ingestion, live
// calibrated scanning, full pipeline analysis with optional LLM refinement,
// and effort scoring for account metadata. Pattern centroids are built
// separately by trustd-ingest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trustd/internal/api"
	"trustd/internal/calibrate"
	"trustd/internal/config"
	"trustd/internal/detect"
	"trustd/internal/effort"
	"trustd/internal/health"
	"trustd/internal/llm"
	"trustd/internal/logging"
	"trustd/internal/metrics"
	"trustd/internal/store"
)

const version = "0.3.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: XDG config dir)")
		addr        = flag.String("addr", "", "listen address override")
		dbPath      = flag.String("db", "", "database path override")
		logLevel    = flag.String("log-level", "", "log level override (debug|info|warn|error)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("trustd %s (signature %s)\n", version, detect.Version)
		return
	}

	if err := run(*configPath, *addr, *dbPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "trustd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, dbPath, logLevel string) error {
	if configPath == "" {
		configPath = config.ConfigPath()
	}

	cfg, created, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	log, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	crash := logging.DefaultCrashHandler()
	crash.SetVersion(version)
	defer logging.RecoverPanic()

	if created {
		log.Info("wrote default config", "path", configPath)
	}

	// Hot reload keeps detection tunables and LLM enablement live.
	loader := config.NewLoader(configPath)
	if _, err := loader.Load(); err != nil {
		log.Warn("config loader", "error", err)
	} else if err := loader.Watch(); err != nil {
		log.Warn("config watch", "error", err)
	}
	defer loader.Close()

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	registry := metrics.NewRegistry("trustd", "")
	m := metrics.InitMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var classifier detect.Classifier
	if cfg.LLM.Enabled {
		gemini, err := llm.NewGeminiClassifier(ctx, llm.Config{
			APIKey: cfg.LLM.APIKey,
			Model:  cfg.LLM.Model,
		}, log)
		if err != nil {
			log.Error("llm classifier unavailable, refinement disabled", "error", err)
		} else {
			classifier = gemini
		}
	}

	detector := detect.New(db, classifier, detect.Options{
		PlatformHint: cfg.Detection.PlatformHint,
		LLMEnabled:   cfg.LLM.Enabled && classifier != nil,
		LLMBatchSize: cfg.LLM.BatchSize,
		LLMPause:     time.Duration(cfg.LLM.PauseMs) * time.Millisecond,
		Heuristic:    heuristicScorer(cfg.Detection.ExtraPhrases),
	}, log)

	loader.OnChange(func(next *config.Config) {
		log.Info("config reloaded",
			"llm_enabled", next.LLM.Enabled,
			"platform_hint", next.Detection.PlatformHint)
	})

	checker := health.NewChecker()
	checker.Register(&health.Component{
		Name:     "database",
		Check:    health.DatabaseCheck(db.Ping),
		Critical: true,
	})
	checker.RegisterFunc("classifier", false, health.ClassifierCheck(func() bool {
		return classifier != nil
	}))
	// A nightly build older than two windows means the timer is broken.
	staleAfter := 2 * time.Duration(cfg.Ingest.WindowHours) * time.Hour
	checker.RegisterFunc("pattern_clusters", false, health.ClusterFreshnessCheck(func() time.Time {
		count, last, err := db.ClusterStats()
		if err != nil {
			return time.Time{}
		}
		m.SetClusterCount(count)
		return last
	}, staleAfter))

	audit := logging.DefaultAuditLogger()
	defer audit.Close()

	calib := calibrate.New()
	effortScorer := &effort.Scorer{}

	server := api.NewServer(api.Options{
		Config:   cfg.Server,
		Store:    db,
		Detector: detector,
		Scanner:  calib,
		Effort:   effortScorer.Score,
		Checker:  checker,
		Registry: registry,
		Metrics:  m,
		Audit:    audit,
		Log:      log,
	})

	if err := audit.LogStartup(ctx, version, map[string]interface{}{
		"addr":        cfg.Server.Addr,
		"db":          cfg.DatabasePath(),
		"llm_enabled": cfg.LLM.Enabled,
	}); err != nil {
		log.Warn("audit startup", "error", err)
	}

	checker.SetReady(true)
	log.Info("trustd starting", "version", version, "addr", cfg.Server.Addr)

	err = server.ListenAndServe(ctx)

	checker.SetReady(false)
	if auditErr := audit.LogShutdown(context.Background(), "signal"); auditErr != nil {
		log.Warn("audit shutdown", "error", auditErr)
	}
	log.Info("trustd stopped")
	return err
}

// heuristicScorer extends the stock phrase list with configured extras.
// No extras means the zero scorer and its defaults.
func heuristicScorer(extra []string) *detect.HeuristicScorer {
	if len(extra) == 0 {
		return nil
	}
	phrases := make([]string, 0, len(detect.DefaultAIPhrases)+len(extra))
	phrases = append(phrases, detect.DefaultAIPhrases...)
	phrases = append(phrases, extra...)
	return &detect.HeuristicScorer{Phrases: phrases}
}

func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format := logging.FormatText
	if cfg.Logging.Format == "json" {
		format = logging.FormatJSON
	}
	logCfg := &logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.File,
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxAge:     cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "trustd",
	}
	return logging.New(logCfg)
}

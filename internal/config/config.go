// Package config handles configuration loading, validation, and hot reload
// for trustd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Server configuration for the HTTP API.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Detection configuration for the scoring pipeline.
	Detection DetectionConfig `toml:"detection" json:"detection" yaml:"detection"`

	// LLM configuration for the external refinement tier.
	LLM LLMConfig `toml:"llm" json:"llm" yaml:"llm"`

	// Ingest configuration for the nightly cluster job.
	Ingest IngestConfig `toml:"ingest" json:"ingest" yaml:"ingest"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `toml:"addr" json:"addr" yaml:"addr"`

	// ReadTimeoutSec bounds how long reading a request may take.
	ReadTimeoutSec int `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`

	// WriteTimeoutSec bounds how long writing a response may take.
	WriteTimeoutSec int `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `toml:"shutdown_timeout_sec" json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`

	// MaxBodyBytes caps request body size. Oversized bodies are rejected.
	MaxBodyBytes int64 `toml:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// RetentionDays is how long raw samples are kept before pruning.
	// Zero disables pruning.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// DetectionConfig holds scoring pipeline configuration. These are the
// hot-reloadable tunables.
type DetectionConfig struct {
	// PlatformHint, when set, overrides per-sample platform derivation.
	PlatformHint string `toml:"platform_hint" json:"platform_hint" yaml:"platform_hint"`

	// ExtraPhrases extends the stock AI-phrase list of the heuristic tier.
	ExtraPhrases []string `toml:"extra_phrases" json:"extra_phrases" yaml:"extra_phrases"`
}

// LLMConfig holds external classifier configuration.
type LLMConfig struct {
	// Enabled turns on refinement of uncertain scores.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// APIKey authenticates against the Gemini API. Usually supplied via
	// the TRUSTD_LLM_API_KEY environment variable rather than the file.
	APIKey string `toml:"api_key" json:"api_key" yaml:"api_key"`

	// Model is the Gemini model name. Empty selects the default.
	Model string `toml:"model" json:"model" yaml:"model"`

	// BatchSize is how many uncertain samples go out per throttle window.
	BatchSize int `toml:"batch_size" json:"batch_size" yaml:"batch_size"`

	// PauseMs is the minimum spacing between refinement batches.
	PauseMs int `toml:"pause_ms" json:"pause_ms" yaml:"pause_ms"`
}

// IngestConfig holds nightly ingestion configuration.
type IngestConfig struct {
	// WindowHours is the lookback window for cluster rebuilding.
	WindowHours int `toml:"window_hours" json:"window_hours" yaml:"window_hours"`

	// ScoreUnsigned runs detection over samples that arrived without a
	// verdict before they are bucketed.
	ScoreUnsigned bool `toml:"score_unsigned" json:"score_unsigned" yaml:"score_unsigned"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the output format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the destination: stdout, stderr, file, or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// File is the log file path when output includes a file.
	File string `toml:"file" json:"file" yaml:"file"`

	// MaxSizeMB is the log rotation size threshold.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// AuditEnabled turns on the append-only audit trail.
	AuditEnabled bool `toml:"audit_enabled" json:"audit_enabled" yaml:"audit_enabled"`

	// AuditFile is the audit log path. Empty uses the default location.
	AuditFile string `toml:"audit_file" json:"audit_file" yaml:"audit_file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	base := TrustdDir()
	return &Config{
		Version: Version,
		Server: ServerConfig{
			Addr:               ":8420",
			ReadTimeoutSec:     15,
			WriteTimeoutSec:    60,
			ShutdownTimeoutSec: 10,
			MaxBodyBytes:       1 << 20,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(base, "trustd.db"),
			BusyTimeoutMs: 5000,
			RetentionDays: 90,
		},
		Detection: DetectionConfig{},
		LLM: LLMConfig{
			Enabled:   false,
			BatchSize: 6,
			PauseMs:   120,
		},
		Ingest: IngestConfig{
			WindowHours:   24,
			ScoreUnsigned: true,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "text",
			Output:       "stderr",
			MaxSizeMB:    10,
			MaxBackups:   5,
			MaxAgeDays:   30,
			AuditEnabled: true,
		},
	}
}

// TrustdDir returns the base trustd data directory.
func TrustdDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "trustd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "trustd")
	}
	return filepath.Join(home, ".local", "share", "trustd")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "trustd", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "trustd", "config.toml")
	}
	return filepath.Join(home, ".config", "trustd", "config.toml")
}

// Load reads the configuration from a file, applies environment overrides,
// and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	if c.Logging.AuditFile != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.AuditFile))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies TRUSTD_* environment variables on top of the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("TRUSTD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRUSTD_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TRUSTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRUSTD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TRUSTD_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TRUSTD_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TRUSTD_LLM_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LLM.Enabled = b
		}
	}
	if v := os.Getenv("TRUSTD_INGEST_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.WindowHours = n
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:   c.Version,
		Server:    c.Server,
		Storage:   c.Storage,
		Detection: c.Detection,
		LLM:       c.LLM,
		Ingest:    c.Ingest,
		Logging:   c.Logging,
	}
	clone.Detection.ExtraPhrases = append([]string(nil), c.Detection.ExtraPhrases...)
	return clone
}

// DatabasePath returns the configured database path.
func (c *Config) DatabasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Storage.Path
}

// ListenAddr returns the configured HTTP listen address.
func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.Addr
}

func decodeJSON(data []byte, cfg *Config) error {
	return json.Unmarshal(data, cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func decodeTOML(data []byte, cfg *Config) error {
	_, err := toml.Decode(string(data), cfg)
	return err
}

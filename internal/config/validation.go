package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLLM(&c.LLM)...)
	errs = append(errs, validateIngest(&c.Ingest)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		errs = append(errs, ValidationError{Field: "server.addr", Message: fmt.Sprintf("invalid address: %v", err)})
	}

	if s.ReadTimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "server.read_timeout_sec", Message: "must not be negative"})
	}
	if s.WriteTimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "server.write_timeout_sec", Message: "must not be negative"})
	}
	if s.ShutdownTimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "server.shutdown_timeout_sec", Message: "must not be negative"})
	}
	if s.MaxBodyBytes < 0 {
		errs = append(errs, ValidationError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Path == "" {
		errs = append(errs, ValidationError{Field: "storage.path", Message: "database path is required"})
	}
	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "storage.busy_timeout_ms", Message: "must not be negative"})
	}
	if s.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "storage.retention_days", Message: "must not be negative"})
	}

	return errs
}

func validateLLM(l *LLMConfig) ValidationErrors {
	var errs ValidationErrors

	if l.Enabled && l.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.api_key",
			Message: "required when llm.enabled is true (set TRUSTD_LLM_API_KEY)",
		})
	}
	if l.BatchSize < 0 {
		errs = append(errs, ValidationError{Field: "llm.batch_size", Message: "must not be negative"})
	}
	if l.PauseMs < 0 {
		errs = append(errs, ValidationError{Field: "llm.pause_ms", Message: "must not be negative"})
	}

	return errs
}

func validateIngest(i *IngestConfig) ValidationErrors {
	var errs ValidationErrors

	if i.WindowHours < 1 {
		errs = append(errs, ValidationError{Field: "ingest.window_hours", Message: "must be at least 1"})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (want debug, info, warn, or error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (want text or json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output %q (want stdout, stderr, file, or both)", l.Output),
		})
	}

	if (l.Output == "file" || l.Output == "both") && l.File == "" {
		errs = append(errs, ValidationError{Field: "logging.file", Message: "required for file output"})
	}
	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "must not be negative"})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_age_days", Message: "must not be negative"})
	}

	return errs
}

package config

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Role selects which sections are checked.
type Role int

const (
	// RoleLocal checks grid, master pool and output.
	RoleLocal Role = iota
	// RoleMaster additionally checks the listen address.
	RoleMaster
	// RoleWorker checks only the worker section.
	RoleWorker
)

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate checks cfg for role and returns ValidationErrors if anything is wrong.
func (v *Validator) Validate(cfg *Config, role Role) error {
	v.errors = make(ValidationErrors, 0)

	switch role {
	case RoleWorker:
		v.validateWorkerConfig(&cfg.Worker)
	default:
		v.validateGridConfig(&cfg.Grid)
		v.validateMasterConfig(&cfg.Master, role == RoleMaster)
		if cfg.Output.Path == "" {
			v.addError("output.path", "output path is required")
		}
	}
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateGridConfig(cfg *GridConfig) {
	if cfg.Width <= 0 {
		v.addError("grid.width", "width must be positive")
	}
	if cfg.Height < 0 {
		v.addError("grid.height", "height must be non-negative")
	}
	if cfg.MaxIter <= 0 {
		v.addError("grid.max_iter", "max_iter must be positive")
	} else if cfg.MaxIter > math.MaxInt32 {
		v.addError("grid.max_iter", fmt.Sprintf("max_iter must not exceed %d", math.MaxInt32))
	}
	if cfg.ChunkSize <= 0 {
		v.addError("grid.chunk_size", "chunk_size must be positive")
	} else if cfg.ChunkSize > math.MaxInt32 {
		v.addError("grid.chunk_size", fmt.Sprintf("chunk_size must not exceed %d", math.MaxInt32))
	}
	if cfg.Width > 0 && cfg.Height > 0 && cfg.Width > math.MaxInt32/cfg.Height {
		v.addError("grid", "width*height is too large")
	}
	if cfg.XSpan <= 0 || cfg.YSpan <= 0 {
		v.addError("grid.x_span", "viewport spans must be positive")
	}
}

func (v *Validator) validateMasterConfig(cfg *MasterConfig, listening bool) {
	if cfg.Workers < 0 {
		v.addError("master.workers", "workers must be non-negative")
	}
	switch cfg.Harvest {
	case "", "async", "sync":
	default:
		v.addError("master.harvest", "harvest must be async or sync")
	}
	if cfg.MaxCells < 0 {
		v.addError("master.max_cells", "max_cells must be non-negative")
	}
	if listening {
		if cfg.Address == "" {
			v.addError("master.address", "address is required")
		} else if !isValidAddress(cfg.Address) {
			v.addError("master.address", "invalid address format, expected host:port or :port")
		}
	}
}

func (v *Validator) validateWorkerConfig(cfg *WorkerConfig) {
	if cfg.MasterURL == "" {
		v.addError("worker.master_url", "master url is required")
	} else if u, err := url.Parse(cfg.MasterURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		v.addError("worker.master_url", "master url must be a ws:// or wss:// url")
	}
	if cfg.DialTimeout < 0 {
		v.addError("worker.dial_timeout", "dial timeout must be non-negative")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	switch strings.ToLower(cfg.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", "level must be one of debug, info, warn, error")
	}
	switch cfg.Format {
	case "", "console", "json":
	default:
		v.addError("logging.format", "format must be console or json")
	}
	switch cfg.Output {
	case "", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required for file output")
		}
	default:
		v.addError("logging.output", "output must be stderr, file or both")
	}
}

func isValidAddress(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}

// ValidateConfig is a convenience function to validate a configuration.
func ValidateConfig(cfg *Config, role Role) error {
	return NewValidator().Validate(cfg, role)
}

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/godbus/dbus/v5"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

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

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
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

	errs = append(errs, validateInput(&c.Input)...)
	errs = append(errs, validatePreferences(&c.Preferences)...)
	errs = append(errs, validateProximity(&c.Proximity)...)
	errs = append(errs, validateHaptics(&c.Haptics)...)
	errs = append(errs, validateModes(&c.Modes)...)
	errs = append(errs, validateActions(&c.Actions)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateStatus(&c.Status)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateInput(i *InputConfig) ValidationErrors {
	var errs ValidationErrors
	for idx, dev := range i.Devices {
		if strings.TrimSpace(dev) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("input.devices[%d]", idx),
				Message: "device path cannot be empty",
			})
		}
	}
	return errs
}

func validatePreferences(p *PreferencesConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Backend {
	case "sqlite", "file":
		if p.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "preferences.path",
				Message: fmt.Sprintf("path is required for the %s backend", p.Backend),
			})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "preferences.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: sqlite, file, memory)", p.Backend),
		})
	}

	if strings.TrimSpace(p.KeyPrefix) == "" {
		errs = append(errs, ValidationError{
			Field:   "preferences.key_prefix",
			Message: "key prefix is required",
		})
	}

	if p.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "preferences.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateProximity(p *ProximityConfig) ValidationErrors {
	var errs ValidationErrors
	if p.TimeoutMs < 10 || p.TimeoutMs > 5000 {
		errs = append(errs, *RangeError("proximity.timeout_ms", 10, 5000))
	}
	return errs
}

func validateHaptics(h *HapticsConfig) ValidationErrors {
	var errs ValidationErrors
	if h.PulseMs < 1 || h.PulseMs > 1000 {
		errs = append(errs, *RangeError("haptics.pulse_ms", 1, 1000))
	}
	return errs
}

func validateModes(m *ModesConfig) ValidationErrors {
	var errs ValidationErrors
	if m.FilterDest == "" {
		return errs
	}
	if !dbus.ObjectPath(m.FilterPath).IsValid() {
		errs = append(errs, ValidationError{
			Field:   "modes.filter_path",
			Message: fmt.Sprintf("invalid object path: %q", m.FilterPath),
		})
	}
	if !strings.Contains(m.FilterMethod, ".") {
		errs = append(errs, ValidationError{
			Field:   "modes.filter_method",
			Message: "method must be interface-qualified, e.g. org.example.Modes.SetFilter",
		})
	}
	return errs
}

func validateActions(a *ActionsConfig) ValidationErrors {
	var errs ValidationErrors
	if !dbus.ObjectPath(a.ObjectPath).IsValid() {
		errs = append(errs, ValidationError{
			Field:   "actions.object_path",
			Message: fmt.Sprintf("invalid object path: %q", a.ObjectPath),
		})
	}
	if a.CallTimeoutMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "actions.call_timeout_ms",
			Message: "call timeout must be positive",
		})
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
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

func validateStatus(st *StatusConfig) ValidationErrors {
	if !st.Enabled {
		return nil
	}
	var errs ValidationErrors
	if _, port, err := net.SplitHostPort(st.Listen); err != nil || port == "" {
		errs = append(errs, ValidationError{
			Field:   "status.listen",
			Message: fmt.Sprintf("invalid listen address: %q (want host:port)", st.Listen),
		})
	}
	return errs
}

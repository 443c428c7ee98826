// Package config handles configuration loading, validation, and management for gestured.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Input configuration for the evdev reader.
	Input InputConfig `toml:"input" json:"input" yaml:"input" envPrefix:"INPUT_"`

	// Gestures configuration for the device gesture resource.
	Gestures GesturesConfig `toml:"gestures" json:"gestures" yaml:"gestures" envPrefix:"GESTURES_"`

	// Preferences configuration for per-gesture overrides.
	Preferences PreferencesConfig `toml:"preferences" json:"preferences" yaml:"preferences" envPrefix:"PREFS_"`

	// Proximity configuration for the gesture gate.
	Proximity ProximityConfig `toml:"proximity" json:"proximity" yaml:"proximity" envPrefix:"PROXIMITY_"`

	// Haptics configuration for the vibrator.
	Haptics HapticsConfig `toml:"haptics" json:"haptics" yaml:"haptics" envPrefix:"HAPTICS_"`

	// Modes configuration for ringer and interruption filter control.
	Modes ModesConfig `toml:"modes" json:"modes" yaml:"modes" envPrefix:"MODES_"`

	// Actions configuration for the action signal.
	Actions ActionsConfig `toml:"actions" json:"actions" yaml:"actions" envPrefix:"ACTIONS_"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging" envPrefix:"LOG_"`

	// Status endpoint configuration (metrics and health).
	Status StatusConfig `toml:"status" json:"status" yaml:"status" envPrefix:"STATUS_"`
}

// InputConfig holds evdev input configuration.
type InputConfig struct {
	// Devices are the event device nodes to read, e.g. /dev/input/event3.
	Devices []string `toml:"devices" json:"devices" yaml:"devices" env:"DEVICES"`

	// Grab takes exclusive access to the devices with EVIOCGRAB.
	Grab bool `toml:"grab" json:"grab" yaml:"grab" env:"GRAB"`
}

// GesturesConfig holds gesture resource configuration.
type GesturesConfig struct {
	// ResourcePath is the JSON or YAML gesture resource of the device.
	ResourcePath string `toml:"resource_path" json:"resource_path" yaml:"resource_path" env:"RESOURCE_PATH"`
}

// PreferencesConfig holds preference store configuration.
type PreferencesConfig struct {
	// Backend is "sqlite", "file" or "memory".
	Backend string `toml:"backend" json:"backend" yaml:"backend" env:"BACKEND"`

	// Path is the database or TOML file, depending on Backend.
	Path string `toml:"path" json:"path" yaml:"path" env:"PATH"`

	// KeyPrefix is prepended to the scan code to form a preference key.
	KeyPrefix string `toml:"key_prefix" json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`

	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms" env:"BUSY_TIMEOUT_MS"`

	// Watch reloads the file backend when it changes on disk.
	Watch bool `toml:"watch" json:"watch" yaml:"watch" env:"WATCH"`
}

// ProximityConfig holds proximity gating configuration.
type ProximityConfig struct {
	// Enabled gates gesture codes on a proximity reading.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`

	// TimeoutMs is how long to wait for a reading before discarding.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms" env:"TIMEOUT_MS"`

	// WakeLock takes a logind sleep inhibitor while a reading is pending.
	WakeLock bool `toml:"wake_lock" json:"wake_lock" yaml:"wake_lock" env:"WAKE_LOCK"`
}

// HapticsConfig holds vibrator configuration.
type HapticsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Path is the sysfs vibrator directory. Empty probes the known locations.
	Path string `toml:"path" json:"path" yaml:"path" env:"PATH"`

	// PulseMs is the length of the pulse after a dispatch.
	PulseMs int `toml:"pulse_ms" json:"pulse_ms" yaml:"pulse_ms" env:"PULSE_MS"`
}

// ModesConfig holds ringer and interruption filter configuration.
type ModesConfig struct {
	// Feedbackd maps ringer modes onto the feedbackd profile.
	Feedbackd bool `toml:"feedbackd" json:"feedbackd" yaml:"feedbackd" env:"FEEDBACKD"`

	// Filter* describe a session bus method taking the filter name as its
	// only argument. An empty FilterDest only logs filter changes.
	FilterDest   string `toml:"filter_dest" json:"filter_dest" yaml:"filter_dest" env:"FILTER_DEST"`
	FilterPath   string `toml:"filter_path" json:"filter_path" yaml:"filter_path" env:"FILTER_PATH"`
	FilterMethod string `toml:"filter_method" json:"filter_method" yaml:"filter_method" env:"FILTER_METHOD"`
}

// ActionsConfig holds action signal configuration.
type ActionsConfig struct {
	// BusName is requested on the session bus so consumers can match the
	// signal sender.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name" env:"BUS_NAME"`

	// ObjectPath is the path the Invoke signal is emitted from.
	ObjectPath string `toml:"object_path" json:"object_path" yaml:"object_path" env:"OBJECT_PATH"`

	// CallTimeoutMs bounds every platform call made for a dispatch.
	CallTimeoutMs int `toml:"call_timeout_ms" json:"call_timeout_ms" yaml:"call_timeout_ms" env:"CALL_TIMEOUT_MS"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level" json:"level" yaml:"level" env:"LEVEL"`

	// Format is the log format (text, json).
	Format string `toml:"format" json:"format" yaml:"format" env:"FORMAT"`

	// Output is where to write logs (stdout, stderr, file).
	Output string `toml:"output" json:"output" yaml:"output" env:"OUTPUT"`

	// FilePath is the log file path (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path" env:"FILE"`

	// MaxSizeMB is the log file size that triggers rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`
}

// StatusConfig holds the HTTP status endpoint configuration.
type StatusConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Listen is a host:port. Keep it on loopback; the endpoint has no auth.
	Listen string `toml:"listen" json:"listen" yaml:"listen" env:"LISTEN"`
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Preferences.Backend != "memory" && c.Preferences.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Preferences.Path))
	}
	if c.Logging.Output == "file" && c.Logging.FilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GateTimeout returns the proximity timeout as a duration.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.Proximity.TimeoutMs) * time.Millisecond
}

// PulseDuration returns the haptic pulse length as a duration.
func (c *Config) PulseDuration() time.Duration {
	return time.Duration(c.Haptics.PulseMs) * time.Millisecond
}

// CallTimeout returns the per-call platform timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Actions.CallTimeoutMs) * time.Millisecond
}

package config

import (
	"os"
	"path/filepath"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GESTURED_"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Input: InputConfig{
			Devices: []string{},
			Grab:    false,
		},
		Gestures: GesturesConfig{
			ResourcePath: "/usr/share/gestured/gestures.yaml",
		},
		Preferences: PreferencesConfig{
			Backend:       "sqlite",
			Path:          filepath.Join(PlatformDataDir(), "preferences.db"),
			KeyPrefix:     "screen_off_gesture",
			BusyTimeoutMs: 5000,
			Watch:         true,
		},
		Proximity: ProximityConfig{
			Enabled:   true,
			TimeoutMs: 200,
			WakeLock:  true,
		},
		Haptics: HapticsConfig{
			Enabled: true,
			PulseMs: 50,
		},
		Modes: ModesConfig{
			Feedbackd: true,
		},
		Actions: ActionsConfig{
			BusName:       "org.gestured.Gestures",
			ObjectPath:    "/org/gestured/Gestures",
			CallTimeoutMs: 2000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformStateDir(), "gestured.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Status: StatusConfig{
			Listen: "127.0.0.1:9477",
		},
	}
}

// Linux paths following the XDG Base Directory Specification.

// PlatformConfigDir returns $XDG_CONFIG_HOME/gestured or ~/.config/gestured.
func PlatformConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gestured")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gestured")
}

// PlatformDataDir returns $XDG_DATA_HOME/gestured or ~/.local/share/gestured.
func PlatformDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "gestured")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "gestured")
}

// PlatformStateDir returns $XDG_STATE_HOME/gestured or ~/.local/state/gestured.
func PlatformStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "gestured")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "gestured")
}

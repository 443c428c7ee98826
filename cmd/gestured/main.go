// gestured - screen-off gesture and mode switch daemon
//
// gestured reads scan codes from a touchscreen or alert-slider input
// device and turns them into actions:
//
//	gestured run                       Run the daemon
//	gestured check                     Show configuration and gesture catalog
//	gestured pref get|set|clear|list   Manage per-gesture action overrides
//	gestured simulate <code>...        Feed scan codes through the handler
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gestured/internal/config"
	"gestured/internal/gesture"
	"gestured/internal/logging"
	"gestured/internal/prefs"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		cmdRun(args)
	case "check":
		cmdCheck(args)
	case "pref":
		cmdPref(args)
	case "simulate":
		cmdSimulate(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`gestured - Screen-off Gesture Daemon

USAGE:
    gestured <command> [options]

COMMANDS:
    run                         Run the daemon
    check                       Validate configuration and print the gesture catalog
    check -write <path>         Also save the effective configuration as TOML
    pref get <code>             Show the effective action for a gesture
    pref set <code> <action>    Override the action for a gesture
    pref clear <code>           Remove an override
    pref list                   Show every gesture with its effective action
    simulate <code>...          Feed key releases through a handler with
                                logging collaborators (no hardware)
    help                        Show this help message

OPTIONS:
    -config <path>              Configuration file (TOML, JSON or YAML)

MODE CODES:
    600 total silence   601 alarms only   602 priority only
    603 no filter       604 vibrate       605 ring

ENVIRONMENT:
    GESTURED_* variables override configuration, e.g.
    GESTURED_PROXIMITY_TIMEOUT_MS=300 or GESTURED_LOG_LEVEL=debug.`)
}

// loadConfig parses the common flags and returns a validated configuration.
func loadConfig(fs *flag.FlagSet, args []string) *config.Config {
	configPath := fs.String("config", config.ConfigPath(), "configuration file")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging builds the process logger from configuration.
func setupLogging(cfg *config.Config) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)

	logger, err := logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "gestured",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	return logger
}

// loadCatalog loads the gesture resource. A broken resource is not fatal:
// mode codes keep working.
func loadCatalog(cfg *config.Config, logger *slog.Logger) *gesture.Catalog {
	catalog, err := gesture.Load(cfg.Gestures.ResourcePath, logger)
	if err != nil {
		logger.Warn("gesture resource unavailable, gestures disabled", "error", err)
	}
	return catalog
}

// preferenceStore is what the CLI needs from a backend.
type preferenceStore interface {
	prefs.WritableStore
	Close() error
}

type memoryStore struct{ *prefs.MemoryStore }

func (memoryStore) Close() error { return nil }

// openStore opens the configured preference backend.
func openStore(cfg *config.Config, logger *slog.Logger) (preferenceStore, error) {
	switch cfg.Preferences.Backend {
	case "sqlite":
		return prefs.OpenSQLite(cfg.Preferences.Path, cfg.Preferences.BusyTimeoutMs)
	case "file":
		return prefs.OpenFile(cfg.Preferences.Path, logger)
	default:
		return memoryStore{prefs.NewMemoryStore()}, nil
	}
}

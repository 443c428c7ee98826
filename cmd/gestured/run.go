package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"

	"gestured/internal/config"
	"gestured/internal/evdev"
	"gestured/internal/keyhandler"
	"gestured/internal/platform"
	"gestured/internal/prefs"
	"gestured/internal/scancode"
)

// cmdRun runs the daemon until SIGINT or SIGTERM. SIGUSR1 toggles debug
// logging.
func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg := loadConfig(fs, args)

	if len(cfg.Input.Devices) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no input devices configured (input.devices)")
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logs := setupLogging(cfg)
	defer logs.Close()
	logger := logs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				logger.Info("log level changed", "level", logs.ToggleDebug().String())
			}
		}
	}()

	catalog := loadCatalog(cfg, logs.WithComponent("gesture"))
	logger.Info("gesture catalog loaded", "device", catalog.Device(), "gestures", catalog.Len())

	store, err := openStore(cfg, logs.WithComponent("prefs"))
	if err != nil {
		logger.Error("open preference store failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if fileStore, ok := store.(*prefs.FileStore); ok && cfg.Preferences.Watch {
		fileStore.OnReload(func() { logger.Info("preferences reloaded") })
		if err := fileStore.Watch(); err != nil {
			logger.Warn("preference watch failed", "error", err)
		}
	}

	resolver := prefs.NewResolver(store, catalog, cfg.Preferences.KeyPrefix, logs.WithComponent("prefs"))
	status := newStatusServer(logs.WithComponent("status"))

	hcfg := keyhandler.Config{
		Catalog:       catalog,
		Resolver:      resolver,
		GateTimeout:   cfg.GateTimeout(),
		PulseDuration: cfg.PulseDuration(),
		CallTimeout:   cfg.CallTimeout(),
		Logger:        logs.WithComponent("keyhandler"),
		OnDispatch:    status.metrics.ObserveDispatch,
	}
	wirePlatform(cfg, &hcfg, logs.WithComponent("platform"))

	handler := keyhandler.New(hcfg)
	status.attach(handler, store, hcfg.Sensor != nil, resolver.Prefix())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.Run(ctx)
	}()

	if cfg.Status.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := status.serve(ctx, cfg.Status.Listen); err != nil {
				logger.Error("status endpoint failed", "error", err)
			}
		}()
	}

	readers := 0
	for _, path := range cfg.Input.Devices {
		r, err := evdev.Open(path, evdev.Options{Grab: cfg.Input.Grab, Logger: logs.WithComponent("evdev")})
		if err != nil {
			logger.Error("open input device failed", "device", path, "error", err)
			continue
		}
		readers++
		status.deviceStarted()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer status.deviceStopped()
			err := r.Run(ctx, func(k evdev.Key) {
				handler.HandleKeyEvent(toKeyEvent(k))
			})
			if err != nil {
				logger.Error("input device failed", "device", r.Path(), "error", err)
			}
		}()
	}
	if readers == 0 {
		logger.Error("no input device could be opened")
		stop()
	}

	status.health.SetReady(readers > 0)
	logger.Info("gestured running", "devices", readers, "gated", hcfg.Sensor != nil, "haptics", hcfg.Haptics != nil)
	<-ctx.Done()
	wg.Wait()

	st := handler.Stats()
	logger.Info("gestured stopped",
		"dispatched", st.Dispatched,
		"confirmed", st.Confirmed,
		"discarded", st.Discarded,
		"timed_out", st.TimedOut,
		"busy_dropped", st.BusyDropped,
	)
}

// wirePlatform fills in the hardware collaborators that are present.
// Interface fields are only assigned non-nil values: a nil *Vibrator in a
// non-nil Haptics would defeat the handler's presence checks.
func wirePlatform(cfg *config.Config, hcfg *keyhandler.Config, logger *slog.Logger) {
	var session platform.Conn
	if conn, err := platform.SessionBus(); err != nil {
		logger.Warn("session bus unavailable, actions and modes are log only", "error", err)
	} else {
		session = conn
		if err := platform.RequestName(conn, cfg.Actions.BusName); err != nil {
			logger.Warn("bus name not acquired", "error", err)
		}
	}

	if session != nil {
		hcfg.Actions = platform.NewSignalInvoker(session, dbus.ObjectPath(cfg.Actions.ObjectPath))
	} else {
		hcfg.Actions = platform.LogInvoker{Logger: logger}
	}
	hcfg.Modes = platform.NewFeedbackModes(session, cfg.Modes.Feedbackd, platform.FilterTarget{
		Dest:   cfg.Modes.FilterDest,
		Path:   dbus.ObjectPath(cfg.Modes.FilterPath),
		Method: cfg.Modes.FilterMethod,
	}, logger)

	if cfg.Haptics.Enabled {
		if v, err := platform.ProbeVibrator(cfg.Haptics.Path); err != nil {
			logger.Info("no vibrator, haptic feedback disabled", "error", err)
		} else {
			logger.Info("vibrator found", "path", v.Dir())
			hcfg.Haptics = v
		}
	}

	if !cfg.Proximity.Enabled {
		return
	}
	system, err := platform.SystemBus()
	if err != nil {
		logger.Warn("system bus unavailable, gestures are not proximity gated", "error", err)
		return
	}
	sensor := platform.NewSensorProxy(system, 0, logger)
	if ok, err := sensor.Available(); err != nil || !ok {
		logger.Info("no proximity sensor, gestures are not proximity gated", "error", err)
		return
	}
	hcfg.Sensor = sensor
	if cfg.Proximity.WakeLock {
		hcfg.WakeLock = platform.NewInhibitor(system, "gestured", "Checking proximity for a screen-off gesture")
	}
}

func toKeyEvent(k evdev.Key) keyhandler.KeyEvent {
	ev := keyhandler.KeyEvent{
		ScanCode: scancode.Code(k.ScanCode),
		Action:   keyhandler.ActionUp,
		Time:     k.Time,
		Device:   k.Device,
	}
	if k.Pressed {
		ev.Action = keyhandler.ActionDown
	}
	return ev
}

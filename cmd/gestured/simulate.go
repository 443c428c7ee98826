package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gestured/internal/dispatch"
	"gestured/internal/keyhandler"
	"gestured/internal/platform"
	"gestured/internal/prefs"
	"gestured/internal/scancode"
)

// cmdSimulate feeds key releases through a handler wired to logging
// collaborators, so a catalog and its overrides can be tried without
// hardware.
func cmdSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	proximity := fs.String("proximity", "far", "simulated proximity: far, near or none (no sensor)")
	cfg := loadConfig(fs, args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: gestured simulate [-proximity far|near|none] <code>...")
		os.Exit(1)
	}

	logs := setupLogging(cfg)
	defer logs.Close()
	logger := logs.WithComponent("simulate")

	catalog := loadCatalog(cfg, logs.WithComponent("gesture"))
	store, err := openStore(cfg, logs.WithComponent("prefs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	hcfg := keyhandler.Config{
		Catalog:       catalog,
		Resolver:      prefs.NewResolver(store, catalog, cfg.Preferences.KeyPrefix, logs.WithComponent("prefs")),
		Modes:         platform.NewFeedbackModes(nil, false, platform.FilterTarget{}, logger),
		Actions:       platform.LogInvoker{Logger: logger},
		Haptics:       platform.LogHaptics{Logger: logger},
		GateTimeout:   cfg.GateTimeout(),
		PulseDuration: cfg.PulseDuration(),
		Logger:        logs.WithComponent("keyhandler"),
		OnDispatch: func(ev keyhandler.KeyEvent, d dispatch.Decision) {
			fmt.Printf("%d\t%s\t%s\n", int(ev.ScanCode), d.Kind, describeDecision(d))
		},
	}
	switch *proximity {
	case "far":
		hcfg.Sensor = platform.FixedSensor{Reading: platform.ProximityFar}
	case "near":
		hcfg.Sensor = platform.FixedSensor{Reading: platform.ProximityNear}
	case "none":
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown proximity %q\n", *proximity)
		os.Exit(1)
	}

	handler := keyhandler.New(hcfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handler.Run(ctx)

	for _, arg := range fs.Args() {
		code, err := scancode.Parse(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		before := handler.Stats()
		now := time.Now()
		handler.HandleKeyEvent(keyhandler.KeyEvent{ScanCode: code, Action: keyhandler.ActionDown, Time: now, Device: "simulate"})
		accepted := handler.HandleKeyEvent(keyhandler.KeyEvent{ScanCode: code, Action: keyhandler.ActionUp, Time: now, Device: "simulate"})
		if !accepted {
			fmt.Printf("%d\tunsupported\n", int(code))
			continue
		}
		if outcome := waitGate(handler, before, cfg.GateTimeout()+time.Second); outcome != "" {
			fmt.Printf("%d\t%s\n", int(code), outcome)
		}
	}
	_ = handler.Sync()
}

// waitGate waits for a gated event to resolve. It returns "" when the event
// was not gated or was confirmed (the dispatch line already printed).
func waitGate(h *keyhandler.Handler, before keyhandler.Stats, limit time.Duration) string {
	deadline := time.Now().Add(limit)
	for {
		st := h.Stats()
		if st.Gated == before.Gated {
			return ""
		}
		switch {
		case st.Confirmed > before.Confirmed:
			_ = h.Sync()
			return ""
		case st.Discarded > before.Discarded:
			return "discarded (proximity blocked)"
		case st.TimedOut > before.TimedOut:
			return "discarded (no proximity reading)"
		}
		if time.Now().After(deadline) {
			return "pending"
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func describeDecision(d dispatch.Decision) string {
	switch d.Kind {
	case dispatch.InvokeAction:
		return string(d.Action)
	case dispatch.ModeChange:
		return describeMode(d)
	default:
		return "-"
	}
}

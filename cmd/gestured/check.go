package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gestured/internal/dispatch"
	"gestured/internal/prefs"
	"gestured/internal/scancode"
)

// cmdCheck validates the configuration and prints the gesture catalog.
// With -write it also saves the effective configuration, environment
// overrides included, as TOML.
func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	write := fs.String("write", "", "write the effective configuration as TOML to this path")
	cfg := loadConfig(fs, args)
	logs := setupLogging(cfg)
	defer logs.Close()

	if *write != "" {
		if err := cfg.Save(*write); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *write)
	}

	fmt.Println("=== gestured Configuration ===")
	fmt.Println()
	fmt.Printf("Input devices:    %s\n", strings.Join(cfg.Input.Devices, ", "))
	fmt.Printf("Gesture resource: %s\n", cfg.Gestures.ResourcePath)
	fmt.Printf("Preferences:      %s (%s)\n", cfg.Preferences.Backend, cfg.Preferences.Path)
	fmt.Printf("Proximity gate:   %v (timeout %v)\n", cfg.Proximity.Enabled, cfg.GateTimeout())
	fmt.Printf("Haptics:          %v (pulse %v)\n", cfg.Haptics.Enabled, cfg.PulseDuration())
	fmt.Println()

	catalog := loadCatalog(cfg, logs.WithComponent("gesture"))
	fmt.Printf("Gestures (%s): %d\n", catalog.Device(), catalog.Len())

	store, err := openStore(cfg, logs.WithComponent("prefs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	resolver := prefs.NewResolver(store, catalog, cfg.Preferences.KeyPrefix, logs.WithComponent("prefs"))

	for _, code := range catalog.Codes() {
		def, _ := catalog.Lookup(code)
		effective := resolver.Resolve(code)
		marker := ""
		if _, ok := resolver.Override(code); ok {
			marker = " (override)"
		}
		fmt.Printf("  %4d  %-20s default=%-16s action=%s%s\n", int(code), def.Name, def.DefaultAction, effective, marker)
	}

	fmt.Println()
	fmt.Println("Mode codes:")
	for _, code := range scancode.ModeCodes {
		d := dispatch.Decide(code, resolver)
		fmt.Printf("  %4d  %-20s %s\n", int(code), code.String(), describeMode(d))
	}
}

func describeMode(d dispatch.Decision) string {
	var parts []string
	if d.Filter != 0 {
		parts = append(parts, "filter="+d.Filter.String())
	}
	if d.Ringer != 0 {
		parts = append(parts, "ringer="+d.Ringer.String())
	}
	return strings.Join(parts, " ")
}

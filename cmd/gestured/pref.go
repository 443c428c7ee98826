package main

import (
	"flag"
	"fmt"
	"os"

	"gestured/internal/action"
	"gestured/internal/gesture"
	"gestured/internal/prefs"
	"gestured/internal/scancode"
)

// cmdPref manages per-gesture action overrides.
func cmdPref(args []string) {
	fs := flag.NewFlagSet("pref", flag.ExitOnError)
	cfg := loadConfig(fs, args)
	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gestured pref get|set|clear|list [code] [action]")
		os.Exit(1)
	}

	logs := setupLogging(cfg)
	defer logs.Close()

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	catalog := loadCatalog(cfg, logs.WithComponent("gesture"))
	store, err := openStore(cfg, logs.WithComponent("prefs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	resolver := prefs.NewResolver(store, catalog, cfg.Preferences.KeyPrefix, logs.WithComponent("prefs"))

	sub := rest[0]
	if sub == "list" {
		for _, code := range catalog.Codes() {
			printPref(resolver, catalog, code)
		}
		return
	}

	if len(rest) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: gestured pref %s <code>\n", sub)
		os.Exit(1)
	}
	code, err := scancode.Parse(rest[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !scancode.IsGesture(code) {
		fmt.Fprintf(os.Stderr, "Error: %d is a mode code; only gestures have actions\n", int(code))
		os.Exit(1)
	}
	if !catalog.Contains(code) {
		fmt.Fprintf(os.Stderr, "Warning: %d is not in the gesture catalog\n", int(code))
	}
	key := prefs.Key(resolver.Prefix(), code)

	switch sub {
	case "get":
		printPref(resolver, catalog, code)
	case "set":
		if len(rest) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: gestured pref set <code> <action>")
			os.Exit(1)
		}
		ref := action.Ref(rest[2])
		if !ref.Valid() {
			fmt.Fprintf(os.Stderr, "Error: invalid action %q\n", rest[2])
			os.Exit(1)
		}
		if err := store.SetString(key, string(ref)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printPref(resolver, catalog, code)
	case "clear":
		if err := store.Delete(key); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printPref(resolver, catalog, code)
	default:
		fmt.Fprintf(os.Stderr, "Unknown pref command: %s\n", sub)
		os.Exit(1)
	}
}

func printPref(resolver *prefs.Resolver, catalog *gesture.Catalog, code scancode.Code) {
	effective := resolver.Resolve(code)
	source := "default"
	if _, ok := resolver.Override(code); ok {
		source = "override"
	}
	if effective.IsNull() {
		effective = action.Null
	}
	fmt.Printf("%d\t%s\t(%s, default %s)\n", int(code), effective, source, catalog.Default(code))
}

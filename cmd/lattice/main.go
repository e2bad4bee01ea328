// ABOUTME: Entry point for the lattice CLI
// ABOUTME: Graph content store operations against a local namespace directory

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/2389/lattice/internal/namespace"
)

const banner = `
    ╭─────────────────────────────╮
    │                             │
    │   ╻  ┏━┓╺┳╸╺┳╸╻┏━╸┏━╸       │
    │   ┃  ┣━┫ ┃  ┃ ┃┃  ┣╸        │
    │   ┗━╸╹ ╹ ╹  ╹ ╹┗━╸┗━╸       │
    │                             │
    │    graph content store      │
    │                             │
    ╰─────────────────────────────╯
`

// getConfigPath returns the path to the lattice config file.
// Priority: LATTICE_CONFIG env var > XDG_CONFIG_HOME/lattice/config.toml > ~/.config/lattice/config.toml
func getConfigPath() string {
	if envPath := os.Getenv("LATTICE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "lattice.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "lattice", "config.toml")
}

// getDataPath returns the namespace root directory.
// Priority: config storage.path > LATTICE_DATA env var > XDG_DATA_HOME/lattice > ~/.local/share/lattice
func getDataPath(cfg *Config) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	if envPath := os.Getenv("LATTICE_DATA"); envPath != "" {
		return envPath
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "lattice")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	cfg, err := LoadConfig(getConfigPath())
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Logging.Level)

	if cmd == "init" {
		if err := cmdInit(cfg); err != nil {
			color.Red("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// serve loads its own runtime config and registry.
	if cmd == "serve" {
		if err := cmdServe(args); err != nil {
			color.Red("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	reg := namespace.NewRegistry(getDataPath(cfg), cfg.namespaceOptions())
	defer reg.Close()

	switch cmd {
	case "create":
		err = cmdCreate(reg, args)
	case "get":
		err = cmdGet(reg, args)
	case "update":
		err = cmdUpdate(reg, args)
	case "delete":
		err = cmdDelete(reg, args)
	case "list":
		err = cmdList(reg, args)
	case "relate":
		err = cmdRelate(reg, args)
	case "unrelate":
		err = cmdUnrelate(reg, args)
	case "related":
		err = cmdRelated(reg, args, false)
	case "relatedby":
		err = cmdRelated(reg, args, true)
	case "search":
		err = cmdSearch(reg, args)
	case "events":
		err = cmdEvents(reg, args)
	case "actions":
		err = cmdActions(reg, args)
	case "artifact":
		err = cmdArtifact(reg, args)
	case "sync-status":
		err = cmdSyncStatus(reg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: lattice <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  init                               Write a default config file")
	fmt.Println("  serve [-config f] [-ns a,b]        Run the background sync consumers")
	fmt.Println("  create -type <t> [flags]           Create a thing")
	fmt.Println("  get <url>                          Show a thing")
	fmt.Println("  update <url> [flags]               Update a thing")
	fmt.Println("  delete <url>                       Delete a thing and its relationships")
	fmt.Println("  list [-type t] [-prefix p]         List things")
	fmt.Println("  relate <from> <to> <pred> <rev>    Create a relationship")
	fmt.Println("  unrelate <from> <to> <pred>        Remove a relationship")
	fmt.Println("  related <url> <pred>               Things related from url")
	fmt.Println("  relatedby <url> <rev>              Things relating to url")
	fmt.Println("  search -q <text> [flags]           Search things")
	fmt.Println("  events [-type t]                   Show the event ledger")
	fmt.Println("  actions [-status s]                Show tracked actions")
	fmt.Println("  artifact <get|set|del|key> ...     Artifact cache operations")
	fmt.Println("  sync-status [-flush]               Show pending sync outbox")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  LATTICE_CONFIG           Config file path (default: ~/.config/lattice/config.toml)")
	fmt.Println("  LATTICE_DATA             Namespace root directory (default: ~/.local/share/lattice)")
	fmt.Println("  LATTICE_NAMESPACE        Namespace name (default: default; or -ns flag)")
	fmt.Println("  LATTICE_SERVE_CONFIG     Serve-mode runtime config (default: ~/.config/lattice/server.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  lattice create -type Post -data '{\"title\":\"Hello\"}' -content '# Hello'")
	fmt.Println("  lattice relate lattice://thing/p lattice://thing/u author posts")
	fmt.Println("  lattice search -q 'hello' -type Post")
	fmt.Println()
}

func setupLogger(level string) {
	setupLoggerWithFormat(level, "text")
}

func setupLoggerWithFormat(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		// Keep CLI output clean unless asked otherwise.
		logLevel = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// cmdInit writes the default config file if none exists.
func cmdInit(cfg *Config) error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if err := os.MkdirAll(getDataPath(cfg), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("Config: %s\n", path)
	green.Print("  ▶ ")
	fmt.Printf("Data:   %s\n", getDataPath(cfg))
	return nil
}

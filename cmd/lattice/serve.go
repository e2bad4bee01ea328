// ABOUTME: Long-running serve mode driving the background sync consumers
// ABOUTME: Loads the YAML runtime config and forwards outbox mutations until signalled

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/lattice/internal/config"
	"github.com/2389/lattice/internal/namespace"
	"github.com/2389/lattice/internal/search"
	latsync "github.com/2389/lattice/internal/sync"
)

// getServeConfigPath returns the path to the serve-mode runtime config.
// Priority: LATTICE_SERVE_CONFIG env var > XDG_CONFIG_HOME/lattice/server.yaml > ~/.config/lattice/server.yaml
func getServeConfigPath() string {
	if envPath := os.Getenv("LATTICE_SERVE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "lattice", "server.yaml")
}

// runtimeOptions converts the YAML runtime config into namespace options.
func runtimeOptions(cfg *config.Config) namespace.Options {
	searchCfg := search.DefaultConfig()
	if cfg.Search.LexicalWeight > 0 || cfg.Search.SemanticWeight > 0 {
		searchCfg.LexicalWeight = cfg.Search.LexicalWeight
		searchCfg.SemanticWeight = cfg.Search.SemanticWeight
	}
	if cfg.Search.ChunkMaxTokens > 0 {
		searchCfg.Chunking.MaxTokens = cfg.Search.ChunkMaxTokens
	}
	if cfg.Search.ChunkOverlap > 0 {
		searchCfg.Chunking.Overlap = cfg.Search.ChunkOverlap
	}

	opts := namespace.Options{SearchConfig: searchCfg}

	if !cfg.Sync.Enabled {
		return opts
	}

	retry := latsync.DefaultRetryConfig()
	if cfg.Sync.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Sync.MaxAttempts
	}
	if cfg.Sync.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.Sync.InitialBackoff
	}
	if cfg.Sync.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.Sync.MaxBackoff
	}
	opts.Retry = retry

	for _, target := range cfg.Sync.Targets {
		var secret []byte
		if target.Secret != "" {
			secret = []byte(target.Secret)
		}
		opts.SyncTargets = append(opts.SyncTargets, latsync.NewDedupTarget(
			latsync.NewHTTPTarget(target.Name, target.URL, target.Timeout, secret),
			time.Hour, 4096))
	}

	return opts
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", getServeConfigPath(), "Runtime config file (YAML)")
	namespaces := fs.String("ns", "default", "Comma-separated namespaces to serve")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", *configPath, err)
	}
	setupLoggerWithFormat(cfg.Logging.Level, cfg.Logging.Format)

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("Config:     %s\n", *configPath)
	green.Print("  ▶ ")
	fmt.Printf("Data:       %s\n", cfg.Database.Path)
	green.Print("  ▶ ")
	fmt.Printf("Namespaces: %s\n", *namespaces)
	if cfg.Sync.Enabled {
		green.Print("  ▶ ")
		fmt.Printf("Sync:       %d target(s)\n", len(cfg.Sync.Targets))
	}
	fmt.Println()

	reg := namespace.NewRegistry(cfg.Database.Path, runtimeOptions(cfg))
	defer reg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, name := range strings.Split(*namespaces, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ns, err := reg.Get(name)
		if err != nil {
			return err
		}
		ns.Start(ctx)
	}

	slog.Info("serving", "namespaces", *namespaces)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// ABOUTME: Configuration loading for the lattice CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/2389/lattice/internal/namespace"
	"github.com/2389/lattice/internal/search"
	latsync "github.com/2389/lattice/internal/sync"
)

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Search  SearchConfig  `toml:"search"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type SearchConfig struct {
	LexicalWeight  float64 `toml:"lexical_weight"`
	SemanticWeight float64 `toml:"semantic_weight"`
	ChunkMaxTokens int     `toml:"chunk_max_tokens"`
	ChunkOverlap   int     `toml:"chunk_overlap"`
}

type SyncConfig struct {
	MaxAttempts int                `toml:"max_attempts"`
	Targets     []SyncTargetConfig `toml:"targets"`
}

type SyncTargetConfig struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	Secret  string `toml:"secret"`
	Timeout string `toml:"timeout"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// defaultConfig is written by `lattice init`.
const defaultConfig = `# lattice configuration

[storage]
# Root directory; each namespace gets its own database file beneath it.
# Defaults to $XDG_DATA_HOME/lattice when empty.
path = ""

[search]
lexical_weight = 0.5
semantic_weight = 0.5
chunk_max_tokens = 200
chunk_overlap = 40

[sync]
max_attempts = 4
# [[sync.targets]]
# name = "replica"
# url = "https://replica.example.com/ingest"
# secret = "${LATTICE_SYNC_SECRET}"
# timeout = "10s"

[logging]
level = "warn"
`

// LoadConfig reads config from the given path, expanding environment
// variables. A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that config fields that are present are valid.
func (c *Config) Validate() error {
	for i, target := range c.Sync.Targets {
		if target.Name == "" {
			return fmt.Errorf("sync.targets[%d].name is required", i)
		}
		if target.URL == "" {
			return fmt.Errorf("sync.targets[%d].url is required", i)
		}
		u, err := url.Parse(target.URL)
		if err != nil {
			return fmt.Errorf("sync.targets[%d].url is not a valid URL: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("sync.targets[%d].url must use http or https scheme", i)
		}
		if target.Timeout != "" {
			if _, err := time.ParseDuration(target.Timeout); err != nil {
				return fmt.Errorf("sync.targets[%d].timeout is not a valid duration: %w", i, err)
			}
		}
	}
	return nil
}

// namespaceOptions converts CLI config into runtime options.
func (c *Config) namespaceOptions() namespace.Options {
	searchCfg := search.DefaultConfig()
	if c.Search.LexicalWeight > 0 || c.Search.SemanticWeight > 0 {
		searchCfg.LexicalWeight = c.Search.LexicalWeight
		searchCfg.SemanticWeight = c.Search.SemanticWeight
	}
	if c.Search.ChunkMaxTokens > 0 {
		searchCfg.Chunking.MaxTokens = c.Search.ChunkMaxTokens
	}
	if c.Search.ChunkOverlap > 0 {
		searchCfg.Chunking.Overlap = c.Search.ChunkOverlap
	}

	opts := namespace.Options{SearchConfig: searchCfg}

	retry := latsync.DefaultRetryConfig()
	if c.Sync.MaxAttempts > 0 {
		retry.MaxAttempts = c.Sync.MaxAttempts
	}
	opts.Retry = retry

	for _, target := range c.Sync.Targets {
		timeout := time.Duration(0)
		if target.Timeout != "" {
			timeout, _ = time.ParseDuration(target.Timeout) // validated in Validate
		}
		var secret []byte
		if target.Secret != "" {
			secret = []byte(target.Secret)
		}
		// Dedup wrapper drops same-process replays of already-acknowledged
		// mutations before they hit the wire.
		opts.SyncTargets = append(opts.SyncTargets, latsync.NewDedupTarget(
			latsync.NewHTTPTarget(target.Name, target.URL, timeout, secret),
			time.Hour, 4096))
	}

	return opts
}

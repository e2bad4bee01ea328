// ABOUTME: Configuration loading and parsing for lattice
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lattice configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration. Path is the root
// directory; each namespace gets its own database file beneath it.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds search scoring and chunking configuration
type SearchConfig struct {
	LexicalWeight  float64 `yaml:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	ChunkMaxTokens int     `yaml:"chunk_max_tokens"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
}

// SyncConfig holds sync manager configuration
type SyncConfig struct {
	Enabled bool               `yaml:"enabled"`
	Targets []SyncTargetConfig `yaml:"targets"`

	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"-"`
	MaxBackoff     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	InitialBackoffRaw string `yaml:"initial_backoff"`
	MaxBackoffRaw     string `yaml:"max_backoff"`
}

// SyncTargetConfig holds one sync target endpoint
type SyncTargetConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"` // optional: enables JWT-signed deliveries
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Search.LexicalWeight < 0 || c.Search.SemanticWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.ChunkOverlap < 0 || c.Search.ChunkMaxTokens < 0 {
		return fmt.Errorf("search chunking values must be non-negative")
	}
	if c.Search.ChunkMaxTokens > 0 && c.Search.ChunkOverlap >= c.Search.ChunkMaxTokens {
		return fmt.Errorf("search.chunk_overlap must be smaller than search.chunk_max_tokens")
	}

	if c.Sync.Enabled && len(c.Sync.Targets) == 0 {
		return fmt.Errorf("sync.targets is required when sync is enabled")
	}
	seen := make(map[string]bool)
	for i, target := range c.Sync.Targets {
		if target.Name == "" {
			return fmt.Errorf("sync.targets[%d].name is required", i)
		}
		if target.URL == "" {
			return fmt.Errorf("sync.targets[%d].url is required", i)
		}
		if seen[target.Name] {
			return fmt.Errorf("sync.targets[%d].name %q is duplicated", i, target.Name)
		}
		seen[target.Name] = true
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sync.InitialBackoffRaw != "" {
		cfg.Sync.InitialBackoff, err = time.ParseDuration(cfg.Sync.InitialBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing initial_backoff %q: %w", cfg.Sync.InitialBackoffRaw, err)
		}
	}

	if cfg.Sync.MaxBackoffRaw != "" {
		cfg.Sync.MaxBackoff, err = time.ParseDuration(cfg.Sync.MaxBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing max_backoff %q: %w", cfg.Sync.MaxBackoffRaw, err)
		}
	}

	for i := range cfg.Sync.Targets {
		target := &cfg.Sync.Targets[i]
		if target.TimeoutRaw == "" {
			continue
		}
		target.Timeout, err = time.ParseDuration(target.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.targets[%d].timeout %q: %w", i, target.TimeoutRaw, err)
		}
	}

	return nil
}

// ABOUTME: Tests for serve-mode runtime config conversion
// ABOUTME: Covers sync target wiring, retry overrides, and search tuning

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/lattice/internal/config"
)

func TestRuntimeOptions_WiresSyncTargets(t *testing.T) {
	cfg := &config.Config{
		Sync: config.SyncConfig{
			Enabled:        true,
			MaxAttempts:    7,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Targets: []config.SyncTargetConfig{
				{Name: "replica", URL: "https://replica.example.com/ingest", Secret: "s", Timeout: 5 * time.Second},
				{Name: "archive", URL: "https://archive.example.com/ingest"},
			},
		},
	}

	opts := runtimeOptions(cfg)

	require.Len(t, opts.SyncTargets, 2)
	assert.Equal(t, "replica", opts.SyncTargets[0].Name())
	assert.Equal(t, "archive", opts.SyncTargets[1].Name())
	assert.Equal(t, 7, opts.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, opts.Retry.InitialBackoff)
	assert.Equal(t, 5*time.Second, opts.Retry.MaxBackoff)
}

func TestRuntimeOptions_SyncDisabledHasNoTargets(t *testing.T) {
	cfg := &config.Config{
		Sync: config.SyncConfig{
			Enabled: false,
			Targets: []config.SyncTargetConfig{
				{Name: "replica", URL: "https://replica.example.com/ingest"},
			},
		},
	}

	opts := runtimeOptions(cfg)
	assert.Empty(t, opts.SyncTargets)
}

func TestRuntimeOptions_SearchTuning(t *testing.T) {
	cfg := &config.Config{
		Search: config.SearchConfig{
			LexicalWeight:  0.7,
			SemanticWeight: 0.3,
			ChunkMaxTokens: 120,
			ChunkOverlap:   20,
		},
	}

	opts := runtimeOptions(cfg)
	assert.Equal(t, 0.7, opts.SearchConfig.LexicalWeight)
	assert.Equal(t, 0.3, opts.SearchConfig.SemanticWeight)
	assert.Equal(t, 120, opts.SearchConfig.Chunking.MaxTokens)
	assert.Equal(t, 20, opts.SearchConfig.Chunking.Overlap)
}

func TestRuntimeOptions_DefaultsWhenUnset(t *testing.T) {
	opts := runtimeOptions(&config.Config{})

	assert.Equal(t, 0.5, opts.SearchConfig.LexicalWeight)
	assert.Equal(t, 0.5, opts.SearchConfig.SemanticWeight)
	assert.Equal(t, 200, opts.SearchConfig.Chunking.MaxTokens)
	assert.Empty(t, opts.SyncTargets)
}

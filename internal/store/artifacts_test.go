// ABOUTME: Tests for the fingerprint-keyed artifact cache
// ABOUTME: Covers fingerprint determinism, idempotent upsert and invalidation

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("render", "# Hello", "theme-dark")
	b := Fingerprint("render", "# Hello", "theme-dark")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex-encoded blake2b-256
}

func TestFingerprint_PartBoundaries(t *testing.T) {
	// Length prefixing keeps ("ab","c") distinct from ("a","bc")
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("ab", "c"))
}

func TestSetAndGetArtifact(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	key := Fingerprint("render", "# Hello")
	artifact, err := s.SetArtifact(ctx, key, "html", []byte("<h1>Hello</h1>"))
	require.NoError(t, err)
	assert.Equal(t, key, artifact.Key)

	got, err := s.GetArtifact(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "html", got.Type)
	assert.Equal(t, []byte("<h1>Hello</h1>"), got.Payload)
}

func TestSetArtifact_IdempotentUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	key := Fingerprint("render", "input")
	_, err := s.SetArtifact(ctx, key, "html", []byte("one"))
	require.NoError(t, err)
	_, err = s.SetArtifact(ctx, key, "html", []byte("two"))
	require.NoError(t, err)

	got, err := s.GetArtifact(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got.Payload)
}

func TestSetArtifact_RewriteKeepsCreatedAt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	key := Fingerprint("render", "stable")
	first, err := s.SetArtifact(ctx, key, "html", []byte("one"))
	require.NoError(t, err)

	second, err := s.SetArtifact(ctx, key, "html", []byte("two"))
	require.NoError(t, err)

	// The returned artifact reflects the stored row, not the write time.
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := s.GetArtifact(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, second.CreatedAt, got.CreatedAt)
}

func TestGetArtifact_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetArtifact(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidateArtifact(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	key := Fingerprint("x")
	_, err := s.SetArtifact(ctx, key, "blob", []byte("data"))
	require.NoError(t, err)

	deleted, err := s.InvalidateArtifact(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.GetArtifact(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = s.InvalidateArtifact(ctx, key)
	require.NoError(t, err)
	assert.False(t, deleted)
}

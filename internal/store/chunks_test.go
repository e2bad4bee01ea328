// ABOUTME: Tests for chunk persistence and embedding blob round-trips
// ABOUTME: Covers wholesale replacement, cascade on delete and type-filtered scans

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceAndGetChunks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	thing := &Thing{Type: "Post", Content: "alpha beta gamma"}
	require.NoError(t, s.CreateThing(ctx, thing))

	chunks := []*Chunk{
		{ThingURL: thing.URL, Index: 0, Text: "alpha beta", Embedding: []float32{1, 0, 0}, Dims: 3},
		{ThingURL: thing.URL, Index: 1, Text: "beta gamma", Embedding: []float32{0, 1, 0}, Dims: 3},
	}
	require.NoError(t, s.ReplaceChunks(ctx, thing.URL, chunks))

	got, err := s.GetChunks(ctx, thing.URL)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, "alpha beta", got[0].Text)
	assert.Equal(t, []float32{1, 0, 0}, got[0].Embedding)
	assert.Equal(t, 3, got[0].Dims)
}

func TestReplaceChunks_Wholesale(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	thing := &Thing{Type: "Post"}
	require.NoError(t, s.CreateThing(ctx, thing))

	require.NoError(t, s.ReplaceChunks(ctx, thing.URL, []*Chunk{
		{ThingURL: thing.URL, Index: 0, Text: "old one"},
		{ThingURL: thing.URL, Index: 1, Text: "old two"},
		{ThingURL: thing.URL, Index: 2, Text: "old three"},
	}))
	require.NoError(t, s.ReplaceChunks(ctx, thing.URL, []*Chunk{
		{ThingURL: thing.URL, Index: 0, Text: "new"},
	}))

	got, err := s.GetChunks(ctx, thing.URL)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
}

func TestReplaceChunks_MissingThing(t *testing.T) {
	s := setupTestStore(t)

	err := s.ReplaceChunks(context.Background(), "lattice://thing/ghost", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteThing_CascadesChunks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	thing := &Thing{Type: "Post"}
	require.NoError(t, s.CreateThing(ctx, thing))
	require.NoError(t, s.ReplaceChunks(ctx, thing.URL, []*Chunk{
		{ThingURL: thing.URL, Index: 0, Text: "chunk"},
	}))

	_, err := s.DeleteThing(ctx, thing.URL)
	require.NoError(t, err)

	got, err := s.GetChunks(ctx, thing.URL)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChunksForSearch_TypeFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := &Thing{Type: "Post"}
	require.NoError(t, s.CreateThing(ctx, post))
	note := &Thing{Type: "Note"}
	require.NoError(t, s.CreateThing(ctx, note))

	require.NoError(t, s.ReplaceChunks(ctx, post.URL, []*Chunk{
		{ThingURL: post.URL, Index: 0, Text: "post chunk", Embedding: []float32{1}, Dims: 1},
	}))
	require.NoError(t, s.ReplaceChunks(ctx, note.URL, []*Chunk{
		{ThingURL: note.URL, Index: 0, Text: "note chunk", Embedding: []float32{1}, Dims: 1},
	}))

	all, err := s.ChunksForSearch(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	posts, err := s.ChunksForSearch(ctx, "Post")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.URL, posts[0].ThingURL)
}

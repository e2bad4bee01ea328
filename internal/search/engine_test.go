// ABOUTME: Tests for the search engine across lexical, semantic and hybrid modes
// ABOUTME: Uses a deterministic fake embedder over an in-memory store

package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/lattice/internal/store"
)

// fakeEmbedder maps known words onto axis-aligned vectors so cosine
// scores are predictable in tests.
type fakeEmbedder struct {
	fail bool
}

var axes = []string{"go", "rust", "python"}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("provider down")
	}
	vec := make([]float32, len(axes))
	lower := strings.ToLower(text)
	for i, axis := range axes {
		vec[i] = float32(strings.Count(lower, axis))
	}
	return vec, nil
}

func setupEngine(t *testing.T, embedder Embedder) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewEngine(s, embedder, DefaultConfig()), s
}

func createIndexed(t *testing.T, e *Engine, s *store.SQLiteStore, typ, content string) *store.Thing {
	t.Helper()
	thing := &store.Thing{Type: typ, Content: content}
	require.NoError(t, s.CreateThing(context.Background(), thing))
	require.NoError(t, e.Index(context.Background(), thing.URL))
	return thing
}

func TestIndex_CommitsChunksWithEmbeddings(t *testing.T) {
	e, s := setupEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	thing := createIndexed(t, e, s, "Post", "go go go")

	chunks, err := s.GetChunks(ctx, thing.URL)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 3, chunks[0].Dims)
	assert.Equal(t, float32(3), chunks[0].Embedding[0])
}

func TestIndex_EmbeddingFailureLeavesNoPartialChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	e, s := setupEngine(t, embedder)
	ctx := context.Background()

	thing := createIndexed(t, e, s, "Post", "stable content")
	before, err := s.GetChunks(ctx, thing.URL)
	require.NoError(t, err)
	require.Len(t, before, 1)

	// Change content, then fail the re-index
	_, err = s.UpdateThing(ctx, thing.URL, store.ThingPatch{Content: strPtr("go everywhere")})
	require.NoError(t, err)

	embedder.fail = true
	err = e.Index(ctx, thing.URL)
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)

	// The update dropped the stale chunks and the failed index added none
	after, err := s.GetChunks(ctx, thing.URL)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestSearch_Lexical(t *testing.T) {
	e, s := setupEngine(t, nil)
	ctx := context.Background()

	match := createIndexed(t, e, s, "Post", "gophers love concurrency")
	createIndexed(t, e, s, "Post", "unrelated text")

	results, err := e.Search(ctx, Query{Text: "concurrency", Mode: ModeLexical})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.URL, results[0].Thing.URL)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearch_LexicalRanksByOccurrences(t *testing.T) {
	e, s := setupEngine(t, nil)
	ctx := context.Background()

	once := createIndexed(t, e, s, "Post", "cache")
	twice := createIndexed(t, e, s, "Post", "cache cache")

	results, err := e.Search(ctx, Query{Text: "cache", Mode: ModeLexical})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, twice.URL, results[0].Thing.URL)
	assert.Equal(t, once.URL, results[1].Thing.URL)
}

func TestSearch_SemanticMaxAggregation(t *testing.T) {
	e, s := setupEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	goThing := createIndexed(t, e, s, "Post", "go go go go")
	rustThing := createIndexed(t, e, s, "Post", "rust rust")

	results, err := e.Search(ctx, Query{Text: "go", Mode: ModeSemantic})
	require.NoError(t, err)
	require.Len(t, results, 1, "orthogonal vectors score 0 and are dropped")
	assert.Equal(t, goThing.URL, results[0].Thing.URL)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	_ = rustThing
}

func TestSearch_SemanticWithSuppliedVector(t *testing.T) {
	e, s := setupEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	match := createIndexed(t, e, s, "Post", "python tooling")

	results, err := e.Search(ctx, Query{Vector: []float32{0, 0, 1}, Mode: ModeSemantic})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.URL, results[0].Thing.URL)
}

func TestSearch_TypeFilter(t *testing.T) {
	e, s := setupEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	createIndexed(t, e, s, "Post", "go notes")
	person := createIndexed(t, e, s, "Person", "go expert")

	results, err := e.Search(ctx, Query{Text: "go", Type: "Person", Mode: ModeHybrid})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, person.URL, results[0].Thing.URL)
}

func TestSearch_HybridMergesBothRankings(t *testing.T) {
	e, s := setupEngine(t, &fakeEmbedder{})
	ctx := context.Background()

	// Lexical match only: contains the literal query text but embeds to
	// the zero vector (no axis words), so the semantic pass drops it
	lexOnly := createIndexed(t, e, s, "Post", "delta delta")
	// Semantic match only: embeds on the first axis, no literal "delta"
	semOnly := createIndexed(t, e, s, "Post", "go forever")

	// Text drives the lexical pass, the supplied vector the semantic one
	results, err := e.Search(ctx, Query{Text: "delta", Vector: []float32{1, 0, 0}, Mode: ModeHybrid})
	require.NoError(t, err)
	require.Len(t, results, 2)

	urls := []string{results[0].Thing.URL, results[1].Thing.URL}
	assert.Contains(t, urls, lexOnly.URL)
	assert.Contains(t, urls, semOnly.URL)
}

func TestSearch_SemanticFailureSurfaces(t *testing.T) {
	embedder := &fakeEmbedder{}
	e, s := setupEngine(t, embedder)
	createIndexed(t, e, s, "Post", "go")

	embedder.fail = true
	_, err := e.Search(context.Background(), Query{Text: "go", Mode: ModeSemantic})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestSearch_Limit(t *testing.T) {
	e, s := setupEngine(t, nil)

	for i := 0; i < 5; i++ {
		createIndexed(t, e, s, "Post", "common term")
	}

	results, err := e.Search(context.Background(), Query{Text: "common", Mode: ModeLexical, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func strPtr(s string) *string { return &s }

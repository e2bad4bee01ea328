// ABOUTME: Lexical, semantic and hybrid search over chunked thing content
// ABOUTME: Semantic scores aggregate to the parent thing by max chunk score

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/2389/lattice/internal/store"
)

// ErrEmbeddingUnavailable is returned when the embedding provider fails.
// No partial chunks are ever committed alongside it.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder turns text into a vector. Implementations must be pure: the
// same text always embeds to the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Mode selects the ranking strategy for a query.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Query describes one search request.
type Query struct {
	Text   string    // query text for lexical matching and/or embedding
	Vector []float32 // optional pre-computed query vector
	Type   string    // optional thing-type filter
	Limit  int       // max results, defaults to 10
	Mode   Mode      // defaults to hybrid when an embedder is available
}

// Result is a ranked thing with its relevance score.
type Result struct {
	Thing *store.Thing
	Score float64
}

// Config holds search engine tuning.
type Config struct {
	// Hybrid ranking merges lexical and semantic scores by weighted sum.
	LexicalWeight  float64
	SemanticWeight float64
	Chunking       ChunkOptions
}

// DefaultConfig returns the documented defaults: equal hybrid weights and
// 200-word chunks with 40-word overlap.
func DefaultConfig() Config {
	return Config{
		LexicalWeight:  0.5,
		SemanticWeight: 0.5,
		Chunking:       DefaultChunkOptions(),
	}
}

// Engine answers search queries for one namespace's store.
type Engine struct {
	store    store.Store
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a search engine. The embedder may be nil, in which
// case only lexical search is available.
func NewEngine(s store.Store, embedder Embedder, cfg Config) *Engine {
	if cfg.LexicalWeight == 0 && cfg.SemanticWeight == 0 {
		cfg.LexicalWeight = 0.5
		cfg.SemanticWeight = 0.5
	}
	return &Engine{
		store:    s,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search"),
	}
}

// Index chunks a thing's content and embeds each chunk, committing the
// chunks and embeddings together. An embedding failure aborts the whole
// pass; the thing's previous chunks stay untouched.
func (e *Engine) Index(ctx context.Context, thingURL string) error {
	thing, err := e.store.GetThing(ctx, thingURL)
	if err != nil {
		return err
	}

	texts := SplitContent(thing.Content, e.cfg.Chunking)
	chunks := make([]*store.Chunk, 0, len(texts))
	for i, text := range texts {
		chunk := &store.Chunk{ThingURL: thingURL, Index: i, Text: text}
		if e.embedder != nil {
			vec, err := e.embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d of %s: %w: %v", i, thingURL, ErrEmbeddingUnavailable, err)
			}
			chunk.Embedding = vec
			chunk.Dims = len(vec)
		}
		chunks = append(chunks, chunk)
	}

	if err := e.store.ReplaceChunks(ctx, thingURL, chunks); err != nil {
		return err
	}

	e.logger.Debug("indexed thing", "url", thingURL, "chunks", len(chunks))
	return nil
}

// Search runs a query in the requested mode and returns ranked things.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	mode := q.Mode
	switch mode {
	case "":
		if e.embedder != nil || q.Vector != nil {
			mode = ModeHybrid
		} else {
			mode = ModeLexical
		}
	case ModeLexical, ModeSemantic, ModeHybrid:
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}

	var lexical, semantic map[string]float64
	var err error

	if mode == ModeLexical || mode == ModeHybrid {
		if q.Text != "" {
			lexical, err = e.lexicalScores(ctx, q)
			if err != nil {
				return nil, err
			}
		}
	}
	if mode == ModeSemantic || mode == ModeHybrid {
		semantic, err = e.semanticScores(ctx, q)
		if err != nil {
			// Hybrid degrades to lexical when no query vector can be
			// produced; pure semantic surfaces the failure.
			if mode == ModeSemantic {
				return nil, err
			}
			if !errors.Is(err, errNoQueryVector) {
				return nil, err
			}
		}
	}

	merged := map[string]float64{}
	switch mode {
	case ModeLexical:
		merged = lexical
	case ModeSemantic:
		merged = semantic
	case ModeHybrid:
		for url, score := range lexical {
			merged[url] += e.cfg.LexicalWeight * score
		}
		for url, score := range semantic {
			merged[url] += e.cfg.SemanticWeight * score
		}
	}

	results := make([]Result, 0, len(merged))
	for url, score := range merged {
		thing, err := e.store.GetThing(ctx, url)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // deleted between scoring and fetch
			}
			return nil, err
		}
		results = append(results, Result{Thing: thing, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Thing.URL < results[j].Thing.URL
	})

	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// errNoQueryVector marks a semantic pass skipped for lack of a vector.
var errNoQueryVector = errors.New("no query vector")

// lexicalScores matches the query text against thing content.
// Score is occurrences/(occurrences+1): monotonic in match count and
// bounded to [0,1) so it merges cleanly with cosine scores.
func (e *Engine) lexicalScores(ctx context.Context, q Query) (map[string]float64, error) {
	needle := strings.ToLower(q.Text)
	scores := map[string]float64{}

	cursor := ""
	for {
		page, err := e.store.ListThings(ctx, store.ListThingsParams{
			Type: q.Type, Limit: 500, Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning things: %w", err)
		}
		for _, thing := range page.Things {
			occ := strings.Count(strings.ToLower(thing.Content), needle)
			if occ == 0 {
				continue
			}
			scores[thing.URL] = float64(occ) / float64(occ+1)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return scores, nil
}

// semanticScores ranks things by their best-matching chunk; the max
// chunk score becomes the thing's score.
func (e *Engine) semanticScores(ctx context.Context, q Query) (map[string]float64, error) {
	queryVec := q.Vector
	if queryVec == nil {
		if e.embedder == nil || q.Text == "" {
			return nil, errNoQueryVector
		}
		var err error
		queryVec, err = e.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w: %v", ErrEmbeddingUnavailable, err)
		}
	}

	chunks, err := e.store.ChunksForSearch(ctx, q.Type)
	if err != nil {
		return nil, err
	}

	scores := map[string]float64{}
	for _, chunk := range chunks {
		if chunk.Embedding == nil {
			continue
		}
		score := CosineSimilarity(queryVec, chunk.Embedding)
		if score > scores[chunk.ThingURL] {
			scores[chunk.ThingURL] = score
		}
	}
	return scores, nil
}

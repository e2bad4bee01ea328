// ABOUTME: Deterministic content chunking with word windows and overlap
// ABOUTME: Identical (content, options) always yields identical chunk boundaries

package search

import (
	"strings"
	"unicode"
)

// ChunkOptions controls the chunking policy.
type ChunkOptions struct {
	MaxTokens int // approximate word count per chunk
	Overlap   int // word overlap between consecutive chunks
}

// DefaultChunkOptions returns the chunking defaults.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MaxTokens: 200, Overlap: 40}
}

// normalize clamps options to sane values without losing determinism.
func (o ChunkOptions) normalize() ChunkOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 200
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.MaxTokens {
		o.Overlap = o.MaxTokens / 4
	}
	return o
}

// SplitContent splits content into overlapping word windows. The split is
// a pure function of (content, opts), so re-chunking unchanged content is
// idempotent down to the byte.
func SplitContent(content string, opts ChunkOptions) []string {
	opts = opts.normalize()

	words := strings.Fields(normalizeWhitespace(content))
	if len(words) == 0 {
		return nil
	}

	stride := opts.MaxTokens - opts.Overlap
	var chunks []string
	for i := 0; i < len(words); i += stride {
		end := i + opts.MaxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

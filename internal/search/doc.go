// Package search provides lexical, semantic and hybrid search over a
// namespace's things.
//
// Content is split into deterministic overlapping word windows and each
// chunk carries an embedding supplied by an external Embedder. Semantic
// queries score things by their best-matching chunk (max aggregation);
// hybrid queries merge lexical and semantic rankings by weighted sum,
// 0.5/0.5 by default.
package search

// ABOUTME: Chunk persistence for content fragments and their embeddings
// ABOUTME: Chunks are replaced wholesale, never patched; parent deletion cascades

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceChunks atomically swaps a thing's chunks for a new set. Chunking
// and embedding commit together or not at all, so a failed embedding run
// never leaves partial chunks behind. The thing must exist.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, thingURL string, chunks []*Chunk) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT 1 FROM things WHERE url = ?`, thingURL).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("thing %s: %w", thingURL, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("checking thing: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM chunks WHERE thing_url = ?`, thingURL); err != nil {
			return fmt.Errorf("deleting old chunks: %w", err)
		}

		for _, c := range chunks {
			_, err := tx.Exec(
				`INSERT INTO chunks (thing_url, chunk_index, chunk_text, embedding, dims)
				 VALUES (?, ?, ?, ?, ?)`,
				thingURL, c.Index, c.Text, marshalVector(c.Embedding), c.Dims,
			)
			if err != nil {
				return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("replaced chunks", "thing_url", thingURL, "count", len(chunks))
	return nil
}

// GetChunks retrieves a thing's chunks in index order.
func (s *SQLiteStore) GetChunks(ctx context.Context, thingURL string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thing_url, chunk_index, chunk_text, embedding, dims
		 FROM chunks WHERE thing_url = ? ORDER BY chunk_index ASC`, thingURL)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ChunksForSearch retrieves every embedded chunk, optionally restricted
// to things of one type, for nearest-neighbor scans.
func (s *SQLiteStore) ChunksForSearch(ctx context.Context, thingType string) ([]*Chunk, error) {
	query := `
		SELECT c.thing_url, c.chunk_index, c.chunk_text, c.embedding, c.dims
		FROM chunks c
	`
	var args []any
	if thingType != "" {
		query += ` JOIN things t ON t.url = c.thing_url WHERE t.type = ?`
		args = append(args, thingType)
	}
	query += ` ORDER BY c.thing_url, c.chunk_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// scanChunks reads chunk rows, decoding embedding blobs.
func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		c := &Chunk{}
		var blob []byte
		if err := rows.Scan(&c.ThingURL, &c.Index, &c.Text, &blob, &c.Dims); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = unmarshalVector(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

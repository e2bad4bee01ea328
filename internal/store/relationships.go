// ABOUTME: Bidirectional relationship operations over a single edge table
// ABOUTME: One row per edge carries both direction names; indexes make both query paths cheap

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Relate upserts the edge (from, to, predicate). Both endpoints must
// exist as things; the check runs inside the same transaction as the
// insert so a concurrent delete cannot slip an orphaned edge in.
// Re-relating the same triple refreshes the reverse name only.
func (s *SQLiteStore) Relate(ctx context.Context, from, to, predicate, reverse string) (*Relationship, error) {
	if predicate == "" || reverse == "" {
		return nil, fmt.Errorf("predicate and reverse required")
	}

	rel := &Relationship{
		From:      from,
		To:        to,
		Predicate: predicate,
		Reverse:   reverse,
		CreatedAt: time.Now().UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, url := range []string{from, to} {
			var exists int
			err := tx.QueryRow(`SELECT 1 FROM things WHERE url = ?`, url).Scan(&exists)
			if err == sql.ErrNoRows {
				return fmt.Errorf("thing %s: %w", url, ErrInvalidReference)
			}
			if err != nil {
				return fmt.Errorf("checking endpoint: %w", err)
			}
		}

		res, err := tx.Exec(
			`INSERT INTO relationships (from_url, to_url, predicate, reverse, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(from_url, to_url, predicate)
			 DO UPDATE SET reverse = excluded.reverse`,
			from, to, predicate, reverse, formatTime(rel.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("upserting relationship: %w", err)
		}

		// An upsert of an existing triple keeps its original created_at;
		// read it back so callers see the stored value.
		if n, _ := res.RowsAffected(); n > 0 {
			var createdStr string
			err = tx.QueryRow(
				`SELECT created_at FROM relationships
				 WHERE from_url = ? AND to_url = ? AND predicate = ?`,
				from, to, predicate,
			).Scan(&createdStr)
			if err != nil {
				return fmt.Errorf("reading relationship: %w", err)
			}
			rel.CreatedAt, err = parseTime(createdStr)
			if err != nil {
				return fmt.Errorf("parsing created_at: %w", err)
			}
		}

		return s.recordMutationTx(tx, "relationship.created", map[string]any{
			"from":      from,
			"to":        to,
			"predicate": predicate,
			"reverse":   reverse,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("related things", "from", from, "to", to, "predicate", predicate)
	return rel, nil
}

// Related returns the things on the to side of edges matching
// (url, predicate), ordered by edge creation time then URL.
func (s *SQLiteStore) Related(ctx context.Context, url, predicate string, opts QueryOptions) (*RelatedResult, error) {
	return s.queryRelated(ctx,
		`SELECT t.url, t.type, t.data, t.content, t.source, t.created_at, t.updated_at,
		        r.created_at
		 FROM relationships r
		 JOIN things t ON t.url = r.to_url
		 WHERE r.from_url = ? AND r.predicate = ?`,
		url, predicate, opts)
}

// RelatedBy returns the things on the from side of edges whose reverse
// name matches (url, reverse), the backward query direction.
func (s *SQLiteStore) RelatedBy(ctx context.Context, url, reverse string, opts QueryOptions) (*RelatedResult, error) {
	return s.queryRelated(ctx,
		`SELECT t.url, t.type, t.data, t.content, t.source, t.created_at, t.updated_at,
		        r.created_at
		 FROM relationships r
		 JOIN things t ON t.url = r.from_url
		 WHERE r.to_url = ? AND r.reverse = ?`,
		url, reverse, opts)
}

// queryRelated executes one direction of a relationship query with
// shared ordering and cursor pagination over (edge created_at, thing url).
func (s *SQLiteStore) queryRelated(ctx context.Context, base, url, name string, opts QueryOptions) (*RelatedResult, error) {
	limit := clampLimit(opts.Limit)

	var cursorTS time.Time
	var cursorURL string
	if opts.Cursor != "" {
		var err error
		cursorTS, cursorURL, err = decodeCursor(opts.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
	}

	query := base
	args := []any{url, name}

	if opts.Cursor != "" {
		ts := formatTime(cursorTS)
		if opts.Descending {
			query += ` AND (r.created_at < ? OR (r.created_at = ? AND t.url < ?))`
		} else {
			query += ` AND (r.created_at > ? OR (r.created_at = ? AND t.url > ?))`
		}
		args = append(args, ts, ts, cursorURL)
	}

	if opts.Descending {
		query += ` ORDER BY r.created_at DESC, t.url DESC`
	} else {
		query += ` ORDER BY r.created_at ASC, t.url ASC`
	}
	query += ` LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var things []*Thing
	var edgeTimes []time.Time
	for rows.Next() {
		thing := &Thing{}
		var dataJSON, createdStr, updatedStr, edgeCreatedStr string
		if err := rows.Scan(&thing.URL, &thing.Type, &dataJSON, &thing.Content,
			&thing.Source, &createdStr, &updatedStr, &edgeCreatedStr); err != nil {
			return nil, fmt.Errorf("scanning related thing: %w", err)
		}
		thing.Data, err = unmarshalJSON(dataJSON)
		if err != nil {
			return nil, fmt.Errorf("decoding thing data: %w", err)
		}
		thing.CreatedAt, err = parseTime(createdStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		thing.UpdatedAt, err = parseTime(updatedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		edgeTS, err := parseTime(edgeCreatedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing edge created_at: %w", err)
		}
		things = append(things, thing)
		edgeTimes = append(edgeTimes, edgeTS)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", err)
	}

	result := &RelatedResult{}
	if len(things) > limit {
		things = things[:limit]
		result.HasMore = true
		// The cursor points at the last row of the kept page, keyed by
		// the edge's creation time rather than the thing's.
		result.NextCursor = encodeCursor(edgeTimes[limit-1], things[limit-1].URL)
	}
	result.Things = things
	return result, nil
}

// Unrelate removes the edge (from, to, predicate). Returns false if no
// such edge existed.
func (s *SQLiteStore) Unrelate(ctx context.Context, from, to, predicate string) (bool, error) {
	deleted := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`DELETE FROM relationships WHERE from_url = ? AND to_url = ? AND predicate = ?`,
			from, to, predicate,
		)
		if err != nil {
			return fmt.Errorf("deleting relationship: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking delete result: %w", err)
		}
		if n == 0 {
			return nil
		}
		deleted = true

		return s.recordMutationTx(tx, "relationship.deleted", map[string]any{
			"from":      from,
			"to":        to,
			"predicate": predicate,
		})
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.logger.Debug("unrelated things", "from", from, "to", to, "predicate", predicate)
	}
	return deleted, nil
}

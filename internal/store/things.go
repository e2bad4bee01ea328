// ABOUTME: Thing CRUD operations for the documents table
// ABOUTME: Covers create, get, merge-update, cascading delete and cursor-paginated listing

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newID mints an identifier for generated entities.
func newID() string {
	return uuid.NewString()
}

// generateThingURL mints a URL for a thing created without one.
func generateThingURL() string {
	return "lattice://thing/" + newID()
}

// CreateThing persists a new thing. If thing.URL is empty a URL is
// generated; a supplied URL that collides returns ErrAlreadyExists.
func (s *SQLiteStore) CreateThing(ctx context.Context, thing *Thing) error {
	if thing.Type == "" {
		return errors.New("thing type required")
	}
	if thing.URL == "" {
		thing.URL = generateThingURL()
	}
	if thing.Data == nil {
		thing.Data = map[string]any{}
	}

	now := time.Now().UTC()
	thing.CreatedAt = now
	thing.UpdatedAt = now

	dataJSON, err := marshalJSON(thing.Data)
	if err != nil {
		return fmt.Errorf("encoding thing data: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO things (url, type, data, content, source, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			thing.URL, thing.Type, dataJSON, thing.Content, thing.Source,
			formatTime(thing.CreatedAt), formatTime(thing.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("thing %s: %w", thing.URL, ErrAlreadyExists)
			}
			return fmt.Errorf("inserting thing: %w", err)
		}

		return s.recordMutationTx(tx, "thing.created", map[string]any{
			"url":  thing.URL,
			"type": thing.Type,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Debug("created thing", "url", thing.URL, "type", thing.Type)
	return nil
}

// GetThing retrieves a thing by URL
func (s *SQLiteStore) GetThing(ctx context.Context, url string) (*Thing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT url, type, data, content, source, created_at, updated_at
		 FROM things WHERE url = ?`, url)

	thing, err := scanThing(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thing %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying thing: %w", err)
	}
	return thing, nil
}

// UpdateThing applies a patch to an existing thing: data entries are
// merged, content and source are replaced when provided, updated_at is
// bumped. A content change drops the thing's chunks so they are
// regenerated on the next index pass.
func (s *SQLiteStore) UpdateThing(ctx context.Context, url string, patch ThingPatch) (*Thing, error) {
	var updated *Thing

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(
			`SELECT url, type, data, content, source, created_at, updated_at
			 FROM things WHERE url = ?`, url)

		thing, err := scanThing(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("thing %s: %w", url, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("querying thing: %w", err)
		}

		for k, v := range patch.Data {
			thing.Data[k] = v
		}
		contentChanged := false
		if patch.Content != nil && *patch.Content != thing.Content {
			thing.Content = *patch.Content
			contentChanged = true
		}
		if patch.Source != nil {
			thing.Source = *patch.Source
		}
		thing.UpdatedAt = time.Now().UTC()

		dataJSON, err := marshalJSON(thing.Data)
		if err != nil {
			return fmt.Errorf("encoding thing data: %w", err)
		}

		_, err = tx.Exec(
			`UPDATE things SET data = ?, content = ?, source = ?, updated_at = ? WHERE url = ?`,
			dataJSON, thing.Content, thing.Source, formatTime(thing.UpdatedAt), url,
		)
		if err != nil {
			return fmt.Errorf("updating thing: %w", err)
		}

		if contentChanged {
			if _, err := tx.Exec(`DELETE FROM chunks WHERE thing_url = ?`, url); err != nil {
				return fmt.Errorf("invalidating chunks: %w", err)
			}
		}

		if err := s.recordMutationTx(tx, "thing.updated", map[string]any{
			"url":  thing.URL,
			"type": thing.Type,
		}); err != nil {
			return err
		}

		updated = thing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated thing", "url", url)
	return updated, nil
}

// DeleteThing removes a thing along with every relationship it appears in
// (either side) and its chunks, all in one transaction. Returns false if
// the thing did not exist.
func (s *SQLiteStore) DeleteThing(ctx context.Context, url string) (bool, error) {
	deleted := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM things WHERE url = ?`, url)
		if err != nil {
			return fmt.Errorf("deleting thing: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking delete result: %w", err)
		}
		if n == 0 {
			return nil
		}
		deleted = true

		if _, err := tx.Exec(
			`DELETE FROM relationships WHERE from_url = ? OR to_url = ?`, url, url); err != nil {
			return fmt.Errorf("deleting relationships: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM chunks WHERE thing_url = ?`, url); err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}

		return s.recordMutationTx(tx, "thing.deleted", map[string]any{"url": url})
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.logger.Debug("deleted thing", "url", url)
	}
	return deleted, nil
}

// ListThings retrieves things with optional type and URL-prefix filters.
// Pagination uses an opaque (created_at, url) cursor so pages stay stable
// under concurrent inserts.
func (s *SQLiteStore) ListThings(ctx context.Context, p ListThingsParams) (*ListThingsResult, error) {
	limit := clampLimit(p.Limit)

	var cursorTS time.Time
	var cursorURL string
	if p.Cursor != "" {
		var err error
		cursorTS, cursorURL, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
	}

	query := `
		SELECT url, type, data, content, source, created_at, updated_at
		FROM things
		WHERE 1=1
	`
	var args []any

	if p.Type != "" {
		query += ` AND type = ?`
		args = append(args, p.Type)
	}
	if p.Prefix != "" {
		query += ` AND url LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(p.Prefix)+"%")
	}
	if p.Cursor != "" {
		query += ` AND (created_at > ? OR (created_at = ? AND url > ?))`
		ts := formatTime(cursorTS)
		args = append(args, ts, ts, cursorURL)
	}

	query += ` ORDER BY created_at ASC, url ASC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying things: %w", err)
	}
	defer rows.Close()

	var things []*Thing
	for rows.Next() {
		thing, err := scanThing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thing: %w", err)
		}
		things = append(things, thing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating things: %w", err)
	}

	result := &ListThingsResult{}
	if len(things) > limit {
		things = things[:limit]
		result.HasMore = true
		last := things[len(things)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.URL)
	}
	result.Things = things
	return result, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanThing reads one things row into a Thing.
func scanThing(row rowScanner) (*Thing, error) {
	thing := &Thing{}
	var dataJSON, createdStr, updatedStr string

	err := row.Scan(&thing.URL, &thing.Type, &dataJSON, &thing.Content,
		&thing.Source, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
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
	return thing, nil
}

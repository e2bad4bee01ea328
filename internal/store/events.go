// ABOUTME: Append-only event log for the namespace mutation feed
// ABOUTME: Events are never updated; only bulk retention pruning removes them

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordEvent appends an event to the log. It fails only on storage I/O
// errors, which are fatal and surfaced to the caller. When sync is
// enabled the event is also queued for forwarding in the same
// transaction, like any other mutation.
func (s *SQLiteStore) RecordEvent(ctx context.Context, eventType string, payload map[string]any) (*Event, error) {
	var event *Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		event, err = s.appendEventTx(tx, eventType, payload)
		if err != nil {
			return err
		}
		if s.syncEnabled {
			return s.appendOutboxTx(tx, "event.recorded", map[string]any{
				"event_id":   event.ID,
				"event_type": event.Type,
				"payload":    payload,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("recorded event", "event_id", event.ID, "type", event.Type)
	return event, nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_id, type, payload, timestamp FROM events WHERE event_id = ?`, id)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return event, nil
}

// ListEvents retrieves events with optional type and time-range filters.
// Events are returned in chronological order (oldest first) with cursor
// pagination over (timestamp, event_id).
func (s *SQLiteStore) ListEvents(ctx context.Context, p ListEventsParams) (*ListEventsResult, error) {
	limit := clampLimit(p.Limit)

	var cursorTS time.Time
	var cursorID string
	if p.Cursor != "" {
		var err error
		cursorTS, cursorID, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
	}

	query := `SELECT event_id, type, payload, timestamp FROM events WHERE 1=1`
	var args []any

	if p.Type != "" {
		query += ` AND type = ?`
		args = append(args, p.Type)
	}
	if p.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(*p.Since))
	}
	if p.Until != nil {
		query += ` AND timestamp <= ?`
		args = append(args, formatTime(*p.Until))
	}
	if p.Cursor != "" {
		query += ` AND (timestamp > ? OR (timestamp = ? AND event_id > ?))`
		ts := formatTime(cursorTS)
		args = append(args, ts, ts, cursorID)
	}

	query += ` ORDER BY timestamp ASC, event_id ASC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	result := &ListEventsResult{}
	if len(events) > limit {
		events = events[:limit]
		result.HasMore = true
		last := events[len(events)-1]
		result.NextCursor = encodeCursor(last.Timestamp, last.ID)
	}
	result.Events = events
	return result, nil
}

// PruneEvents bulk-removes events older than the given time. This is the
// only sanctioned way events leave the log.
func (s *SQLiteStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE timestamp < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}

	if n > 0 {
		s.logger.Info("pruned events", "count", n, "before", before)
	}
	return n, nil
}

// scanEvent reads one events row into an Event.
func scanEvent(row rowScanner) (*Event, error) {
	event := &Event{}
	var payloadJSON, timestampStr string

	err := row.Scan(&event.ID, &event.Type, &payloadJSON, &timestampStr)
	if err != nil {
		return nil, err
	}

	event.Payload, err = unmarshalJSON(payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("decoding event payload: %w", err)
	}
	event.Timestamp, err = parseTime(timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return event, nil
}

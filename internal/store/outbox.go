// ABOUTME: Sync outbox queries and per-target delivery bookkeeping
// ABOUTME: Outbox rows are written transactionally with their primary mutation

package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListOutbox retrieves queued mutations in commit order.
func (s *SQLiteStore) ListOutbox(ctx context.Context, limit int) ([]*Mutation, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT mutation_id, op, payload, created_at
		 FROM sync_outbox ORDER BY created_at ASC, mutation_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var mutations []*Mutation
	for rows.Next() {
		m := &Mutation{}
		var payloadJSON, createdStr string
		if err := rows.Scan(&m.ID, &m.Op, &payloadJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scanning mutation: %w", err)
		}
		m.Payload, err = unmarshalJSON(payloadJSON)
		if err != nil {
			return nil, fmt.Errorf("decoding mutation payload: %w", err)
		}
		m.CreatedAt, err = parseTime(createdStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox: %w", err)
	}
	return mutations, nil
}

// RecordDelivery upserts the per-target outcome for one mutation.
// Outcomes are independent across targets; partial success is normal.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, d *Delivery) error {
	d.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_deliveries (mutation_id, target, status, attempts, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(mutation_id, target) DO UPDATE SET
		   status = excluded.status,
		   attempts = excluded.attempts,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		d.MutationID, d.Target, string(d.Status), d.Attempts, d.LastError,
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	return nil
}

// ListDeliveries retrieves the per-target outcomes for a mutation.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, mutationID string) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mutation_id, target, status, attempts, last_error, updated_at
		 FROM sync_deliveries WHERE mutation_id = ? ORDER BY target ASC`, mutationID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		d := &Delivery{}
		var status, updatedStr string
		if err := rows.Scan(&d.MutationID, &d.Target, &status, &d.Attempts,
			&d.LastError, &updatedStr); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		d.Status = DeliveryStatus(status)
		d.UpdatedAt, err = parseTime(updatedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// RemoveDelivered drops outbox rows that have reached a terminal delivery
// state for every configured target, returning how many were removed.
// Their delivery history stays behind for sync-status inspection.
func (s *SQLiteStore) RemoveDelivered(ctx context.Context, targets []string) (int64, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(targets)), ",")
	query := fmt.Sprintf(`
		DELETE FROM sync_outbox WHERE mutation_id IN (
			SELECT o.mutation_id FROM sync_outbox o
			WHERE (
				SELECT COUNT(*) FROM sync_deliveries d
				WHERE d.mutation_id = o.mutation_id
				  AND d.target IN (%s)
				  AND d.status IN ('delivered', 'failed_permanent')
			) = ?
		)`, placeholders)

	args := make([]any, 0, len(targets)+1)
	for _, t := range targets {
		args = append(args, t)
	}
	args = append(args, len(targets))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("removing delivered mutations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking remove result: %w", err)
	}
	return n, nil
}

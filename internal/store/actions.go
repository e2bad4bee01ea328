// ABOUTME: Durable action tracker with monotonic status transitions
// ABOUTME: pending → running → completed|failed; terminal actions are immutable

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAction registers a new tracked action in the pending state.
func (s *SQLiteStore) CreateAction(ctx context.Context, actor, verb, target string) (*Action, error) {
	action := &Action{
		ID:        newID(),
		Actor:     actor,
		Verb:      verb,
		Target:    target,
		Status:    ActionPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (action_id, actor, verb, target, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		action.ID, action.Actor, action.Verb, action.Target,
		string(action.Status), formatTime(action.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting action: %w", err)
	}

	s.logger.Debug("created action", "action_id", action.ID, "actor", actor, "verb", verb)
	return action, nil
}

// GetAction retrieves an action by ID
func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*Action, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT action_id, actor, verb, target, status, result, error, created_at, completed_at
		 FROM actions WHERE action_id = ?`, id)

	action, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying action: %w", err)
	}
	return action, nil
}

// StartAction moves a pending action to running.
func (s *SQLiteStore) StartAction(ctx context.Context, id string) (*Action, error) {
	return s.transition(ctx, id, ActionRunning, nil, nil)
}

// CompleteAction moves a running action to completed with a result.
func (s *SQLiteStore) CompleteAction(ctx context.Context, id, result string) (*Action, error) {
	return s.transition(ctx, id, ActionCompleted, &result, nil)
}

// FailAction moves a running action to failed with an error message.
func (s *SQLiteStore) FailAction(ctx context.Context, id, actionErr string) (*Action, error) {
	return s.transition(ctx, id, ActionFailed, nil, &actionErr)
}

// validNext enumerates the allowed status transitions.
var validNext = map[ActionStatus]map[ActionStatus]bool{
	ActionPending: {ActionRunning: true},
	ActionRunning: {ActionCompleted: true, ActionFailed: true},
}

// transition applies a status change inside a transaction, enforcing
// monotonicity. Attempts against a terminal action return
// ErrActionFinalized; other illegal changes return ErrInvalidTransition.
func (s *SQLiteStore) transition(ctx context.Context, id string, next ActionStatus, result, actionErr *string) (*Action, error) {
	var action *Action

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(
			`SELECT action_id, actor, verb, target, status, result, error, created_at, completed_at
			 FROM actions WHERE action_id = ?`, id)

		var err error
		action, err = scanAction(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("action %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("querying action: %w", err)
		}

		if action.Status.Terminal() {
			return fmt.Errorf("action %s is %s: %w", id, action.Status, ErrActionFinalized)
		}
		if !validNext[action.Status][next] {
			return fmt.Errorf("action %s: %s → %s: %w", id, action.Status, next, ErrInvalidTransition)
		}

		action.Status = next
		action.Result = result
		action.Error = actionErr
		if next.Terminal() {
			now := time.Now().UTC()
			action.CompletedAt = &now
		}

		var completedStr *string
		if action.CompletedAt != nil {
			str := formatTime(*action.CompletedAt)
			completedStr = &str
		}

		_, err = tx.Exec(
			`UPDATE actions SET status = ?, result = ?, error = ?, completed_at = ?
			 WHERE action_id = ?`,
			string(action.Status), action.Result, action.Error, completedStr, id,
		)
		if err != nil {
			return fmt.Errorf("updating action: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("action transitioned", "action_id", id, "status", action.Status)
	return action, nil
}

// ListActions retrieves actions, optionally filtered by status, newest first.
func (s *SQLiteStore) ListActions(ctx context.Context, status ActionStatus, limit int) ([]*Action, error) {
	limit = clampLimit(limit)

	query := `
		SELECT action_id, actor, verb, target, status, result, error, created_at, completed_at
		FROM actions
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, action_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

// scanAction reads one actions row into an Action.
func scanAction(row rowScanner) (*Action, error) {
	action := &Action{}
	var status, createdStr string
	var completedStr *string

	err := row.Scan(&action.ID, &action.Actor, &action.Verb, &action.Target,
		&status, &action.Result, &action.Error, &createdStr, &completedStr)
	if err != nil {
		return nil, err
	}

	action.Status = ActionStatus(status)
	action.CreatedAt, err = parseTime(createdStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if completedStr != nil {
		t, err := parseTime(*completedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		action.CompletedAt = &t
	}
	return action, nil
}

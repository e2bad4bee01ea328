// ABOUTME: Tests for the durable action tracker
// ABOUTME: Covers the happy path and every illegal status transition

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionLifecycle_Completed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, "agent-1", "write", "lattice://thing/post")
	require.NoError(t, err)
	assert.Equal(t, ActionPending, action.Status)
	assert.Nil(t, action.CompletedAt)

	action, err = s.StartAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionRunning, action.Status)

	action, err = s.CompleteAction(ctx, action.ID, `{"ok":true}`)
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, action.Status)
	require.NotNil(t, action.Result)
	assert.Equal(t, `{"ok":true}`, *action.Result)
	assert.NotNil(t, action.CompletedAt)
}

func TestActionLifecycle_Failed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, "agent-1", "write", "target")
	require.NoError(t, err)
	_, err = s.StartAction(ctx, action.ID)
	require.NoError(t, err)

	action, err = s.FailAction(ctx, action.ID, "boom")
	require.NoError(t, err)
	assert.Equal(t, ActionFailed, action.Status)
	require.NotNil(t, action.Error)
	assert.Equal(t, "boom", *action.Error)
	assert.NotNil(t, action.CompletedAt)
}

func TestAction_CompleteWithoutStart(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, "agent-1", "write", "target")
	require.NoError(t, err)

	_, err = s.CompleteAction(ctx, action.ID, "result")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The failed attempt must not have moved the status
	got, err := s.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionPending, got.Status)
}

func TestAction_DoubleStart(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, "agent-1", "write", "target")
	require.NoError(t, err)
	_, err = s.StartAction(ctx, action.ID)
	require.NoError(t, err)

	_, err = s.StartAction(ctx, action.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAction_TerminalIsImmutable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	action, err := s.CreateAction(ctx, "agent-1", "write", "target")
	require.NoError(t, err)
	_, err = s.StartAction(ctx, action.ID)
	require.NoError(t, err)
	_, err = s.CompleteAction(ctx, action.ID, "done")
	require.NoError(t, err)

	_, err = s.StartAction(ctx, action.ID)
	assert.ErrorIs(t, err, ErrActionFinalized)
	_, err = s.CompleteAction(ctx, action.ID, "again")
	assert.ErrorIs(t, err, ErrActionFinalized)
	_, err = s.FailAction(ctx, action.ID, "late failure")
	assert.ErrorIs(t, err, ErrActionFinalized)

	got, err := s.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, got.Status)
	assert.Equal(t, "done", *got.Result)
}

func TestAction_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.StartAction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActions_StatusFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a1, err := s.CreateAction(ctx, "agent-1", "write", "t1")
	require.NoError(t, err)
	_, err = s.CreateAction(ctx, "agent-1", "write", "t2")
	require.NoError(t, err)
	_, err = s.StartAction(ctx, a1.ID)
	require.NoError(t, err)

	pending, err := s.ListActions(ctx, ActionPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	running, err := s.ListActions(ctx, ActionRunning, 0)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a1.ID, running[0].ID)

	all, err := s.ListActions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

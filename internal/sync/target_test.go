// ABOUTME: Tests for HTTP delivery targets and the dedup wrapper
// ABOUTME: Covers status classification, JWT signing, and replay suppression

package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/lattice/internal/store"
)

func testMutation() *store.Mutation {
	return &store.Mutation{
		ID:        "mut-123",
		Op:        "thing.created",
		Payload:   map[string]any{"url": "lattice://thing/abc"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestHTTPTarget_DeliverSuccess(t *testing.T) {
	var gotBody mutationEnvelope
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Lattice-Mutation-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := NewHTTPTarget("replica", srv.URL, time.Second, nil)
	require.NoError(t, target.Deliver(context.Background(), testMutation()))

	assert.Equal(t, "mut-123", gotHeader)
	assert.Equal(t, "mut-123", gotBody.MutationID)
	assert.Equal(t, "thing.created", gotBody.Op)
	assert.Equal(t, "lattice://thing/abc", gotBody.Payload["url"])
}

func TestHTTPTarget_SignsDeliveryToken(t *testing.T) {
	secret := []byte("sync-secret")
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := NewHTTPTarget("replica", srv.URL, time.Second, secret)
	require.NoError(t, target.Deliver(context.Background(), testMutation()))

	require.True(t, strings.HasPrefix(authz, "Bearer "))
	token, err := jwt.Parse(strings.TrimPrefix(authz, "Bearer "), func(*jwt.Token) (any, error) {
		return secret, nil
	})
	require.NoError(t, err)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "mut-123", claims["sub"])
	assert.Equal(t, "replica", claims["aud"])
}

func TestHTTPTarget_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	target := NewHTTPTarget("replica", srv.URL, time.Second, nil)
	err := target.Deliver(context.Background(), testMutation())

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Retryable)
}

func TestHTTPTarget_RateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	target := NewHTTPTarget("replica", srv.URL, time.Second, nil)
	err := target.Deliver(context.Background(), testMutation())

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Retryable)
}

func TestHTTPTarget_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	target := NewHTTPTarget("replica", srv.URL, time.Second, nil)
	err := target.Deliver(context.Background(), testMutation())

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.False(t, de.Retryable)
}

func TestHTTPTarget_ConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	target := NewHTTPTarget("replica", srv.URL, time.Second, nil)
	err := target.Deliver(context.Background(), testMutation())

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Retryable)
}

func TestDedupTarget_SuppressesReplay(t *testing.T) {
	inner := &fakeTarget{name: "replica"}
	target := NewDedupTarget(inner, time.Minute, 100)
	defer target.Close()

	m := testMutation()
	require.NoError(t, target.Deliver(context.Background(), m))
	require.NoError(t, target.Deliver(context.Background(), m))

	assert.Len(t, inner.received, 1)
}

func TestDedupTarget_FailureDoesNotMark(t *testing.T) {
	inner := &fakeTarget{
		name: "replica",
		errs: []error{retryableErr("replica", errors.New("status 503"))},
	}
	target := NewDedupTarget(inner, time.Minute, 100)
	defer target.Close()

	m := testMutation()
	require.Error(t, target.Deliver(context.Background(), m))
	// The failed attempt must not poison the window; the retry goes through.
	require.NoError(t, target.Deliver(context.Background(), m))
	assert.Len(t, inner.received, 2)
}

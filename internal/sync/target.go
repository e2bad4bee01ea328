// ABOUTME: Sync target transport contract and the HTTP implementation
// ABOUTME: Classifies failures as retryable or permanent; optional JWT-signed deliveries

package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/lattice/internal/dedupe"
	"github.com/2389/lattice/internal/store"
)

// DeliveryError describes a failed delivery attempt. Retryable failures
// (timeouts, 5xx) are retried with backoff; permanent ones (4xx, schema
// rejection) are surfaced immediately.
type DeliveryError struct {
	Target    string
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("delivery to %s failed (%s): %v", e.Target, kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// retryableErr wraps err as a retryable delivery failure.
func retryableErr(target string, err error) *DeliveryError {
	return &DeliveryError{Target: target, Retryable: true, Err: err}
}

// permanentErr wraps err as a permanent delivery failure.
func permanentErr(target string, err error) *DeliveryError {
	return &DeliveryError{Target: target, Retryable: false, Err: err}
}

// Target delivers mutations to one external replica. A nil return means
// the target acknowledged the mutation.
type Target interface {
	Name() string
	Deliver(ctx context.Context, m *store.Mutation) error
}

// HTTPTarget posts mutations as JSON to a webhook-style endpoint.
type HTTPTarget struct {
	name      string
	url       string
	client    *http.Client
	jwtSecret []byte // optional: signs a bearer token per delivery
}

// NewHTTPTarget creates an HTTP sync target. If jwtSecret is non-empty,
// each delivery carries a short-lived HMAC-signed bearer token. The
// timeout bounds every attempt; exceeding it counts as retryable.
func NewHTTPTarget(name, url string, timeout time.Duration, jwtSecret []byte) *HTTPTarget {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTarget{
		name:      name,
		url:       url,
		client:    &http.Client{Timeout: timeout},
		jwtSecret: jwtSecret,
	}
}

// Name returns the configured target name.
func (t *HTTPTarget) Name() string { return t.name }

// mutationEnvelope is the wire shape posted to targets.
type mutationEnvelope struct {
	MutationID string         `json:"mutation_id"`
	Op         string         `json:"op"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  string         `json:"created_at"`
}

// Deliver posts one mutation. The mutation id travels in both the body
// and the X-Lattice-Mutation-ID header so receivers can de-duplicate
// replays without parsing the payload.
func (t *HTTPTarget) Deliver(ctx context.Context, m *store.Mutation) error {
	body, err := json.Marshal(mutationEnvelope{
		MutationID: m.ID,
		Op:         m.Op,
		Payload:    m.Payload,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return permanentErr(t.name, fmt.Errorf("encoding mutation: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return permanentErr(t.name, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lattice-Mutation-ID", m.ID)

	if len(t.jwtSecret) > 0 {
		token, err := t.signToken(m.ID)
		if err != nil {
			return permanentErr(t.name, fmt.Errorf("signing delivery token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Network errors and client timeouts are worth retrying unless
		// the caller itself gave up.
		if errors.Is(err, context.Canceled) {
			return permanentErr(t.name, err)
		}
		return retryableErr(t.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retryableErr(t.name, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return permanentErr(t.name, fmt.Errorf("status %d", resp.StatusCode))
	}
}

// signToken mints a short-lived token binding this delivery to its
// mutation id.
func (t *HTTPTarget) signToken(mutationID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": mutationID,
		"aud": t.name,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.jwtSecret)
}

// DedupTarget wraps a Target with a local de-duplication cache: if a
// retry races an attempt that actually succeeded, the replay is dropped
// before it leaves the process.
type DedupTarget struct {
	inner Target
	cache *dedupe.Cache
}

// NewDedupTarget wraps target with a dedupe window.
func NewDedupTarget(target Target, ttl time.Duration, maxSize int) *DedupTarget {
	return &DedupTarget{
		inner: target,
		cache: dedupe.New(ttl, maxSize),
	}
}

// Name returns the wrapped target's name.
func (d *DedupTarget) Name() string { return d.inner.Name() }

// Deliver forwards to the wrapped target unless the mutation id was
// already acknowledged within the dedupe window.
func (d *DedupTarget) Deliver(ctx context.Context, m *store.Mutation) error {
	if d.cache.Seen(m.ID) {
		return nil
	}
	if err := d.inner.Deliver(ctx, m); err != nil {
		return err
	}
	d.cache.Mark(m.ID)
	return nil
}

// Close releases the dedupe cache's background resources.
func (d *DedupTarget) Close() { d.cache.Close() }

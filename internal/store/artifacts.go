// ABOUTME: Artifact cache keyed by content fingerprint
// ABOUTME: Idempotent upsert semantics; eviction policy belongs to the caller

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a deterministic artifact key from its input parts.
// Parts are length-prefixed before hashing so ("ab","c") and ("a","bc")
// produce different keys.
func Fingerprint(parts ...string) string {
	h, _ := blake2b.New256(nil)
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetArtifact retrieves a cached artifact by key.
func (s *SQLiteStore) GetArtifact(ctx context.Context, key string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, type, payload, created_at FROM artifacts WHERE key = ?`, key)

	artifact := &Artifact{}
	var createdStr string
	err := row.Scan(&artifact.Key, &artifact.Type, &artifact.Payload, &createdStr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact: %w", err)
	}

	artifact.CreatedAt, err = parseTime(createdStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return artifact, nil
}

// SetArtifact stores a derived output under its fingerprint key. The
// upsert is idempotent: rewriting the same key replaces the payload but
// keeps the original created_at, and the returned artifact reflects the
// stored row.
func (s *SQLiteStore) SetArtifact(ctx context.Context, key, artifactType string, payload []byte) (*Artifact, error) {
	artifact := &Artifact{
		Key:     key,
		Type:    artifactType,
		Payload: payload,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (key, type, payload, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET type = excluded.type, payload = excluded.payload`,
			key, artifactType, payload, formatTime(time.Now().UTC()),
		)
		if err != nil {
			return fmt.Errorf("upserting artifact: %w", err)
		}

		var createdStr string
		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM artifacts WHERE key = ?`, key).Scan(&createdStr); err != nil {
			return fmt.Errorf("reading artifact back: %w", err)
		}
		artifact.CreatedAt, err = parseTime(createdStr)
		if err != nil {
			return fmt.Errorf("parsing created_at: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("set artifact", "key", key, "type", artifactType, "bytes", len(payload))
	return artifact, nil
}

// InvalidateArtifact removes a cached artifact. Returns false if the key
// was not present.
func (s *SQLiteStore) InvalidateArtifact(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("deleting artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return n > 0, nil
}

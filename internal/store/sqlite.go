// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Owns schema creation, transactions, cursors and the outbox write hook

package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
// One instance exclusively owns the tables for one namespace.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// When true, every mutating call writes an outbox row in the same
	// transaction as the primary write (outbox pattern). Enabled by
	// attaching a sync manager.
	syncEnabled bool
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single writer owns each namespace database; a second connection
	// would break the serial-execution guarantee and, for :memory:,
	// would see a different database entirely.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// EnableSync turns on transactional outbox writes for every mutation.
func (s *SQLiteStore) EnableSync() {
	s.syncEnabled = true
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS things (
			url TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			content TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_things_type_created
			ON things(type, created_at);

		CREATE TABLE IF NOT EXISTS relationships (
			from_url TEXT NOT NULL,
			to_url TEXT NOT NULL,
			predicate TEXT NOT NULL,
			reverse TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (from_url, to_url, predicate)
		);

		CREATE INDEX IF NOT EXISTS idx_relationships_forward
			ON relationships(from_url, predicate);

		CREATE INDEX IF NOT EXISTS idx_relationships_reverse
			ON relationships(to_url, reverse);

		CREATE TABLE IF NOT EXISTS chunks (
			thing_url TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding BLOB,
			dims INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (thing_url, chunk_index)
		);

		CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_timestamp
			ON events(timestamp, event_id);

		CREATE TABLE IF NOT EXISTS actions (
			action_id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			verb TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			created_at TEXT NOT NULL,
			completed_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_actions_status
			ON actions(status);

		CREATE TABLE IF NOT EXISTS artifacts (
			key TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_outbox (
			mutation_id TEXT PRIMARY KEY,
			op TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_deliveries (
			mutation_id TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (mutation_id, target)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error so a crash
// mid-operation never leaves a partial multi-row mutation visible.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// appendEventTx inserts an event row inside an open transaction.
// Every mutating store call records exactly one event this way.
func (s *SQLiteStore) appendEventTx(tx *sql.Tx, eventType string, payload map[string]any) (*Event, error) {
	event := &Event{
		ID:        newID(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding event payload: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO events (event_id, type, payload, timestamp) VALUES (?, ?, ?, ?)`,
		event.ID, event.Type, payloadJSON, formatTime(event.Timestamp),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return event, nil
}

// appendOutboxTx queues a mutation record inside an open transaction when
// sync is enabled. The mutation id is minted here and never changes, so
// every later delivery attempt carries the same de-duplication key.
func (s *SQLiteStore) appendOutboxTx(tx *sql.Tx, op string, payload map[string]any) error {
	if !s.syncEnabled {
		return nil
	}

	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return fmt.Errorf("encoding mutation payload: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO sync_outbox (mutation_id, op, payload, created_at) VALUES (?, ?, ?, ?)`,
		newID(), op, payloadJSON, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("inserting outbox record: %w", err)
	}
	return nil
}

// recordMutationTx appends the event and outbox rows for one committed write.
func (s *SQLiteStore) recordMutationTx(tx *sql.Tx, op string, payload map[string]any) error {
	if _, err := s.appendEventTx(tx, op, payload); err != nil {
		return err
	}
	return s.appendOutboxTx(tx, op, payload)
}

// timeLayout is fixed-width so stored timestamps compare lexically in
// SQL the same way they compare chronologically. RFC3339Nano would trim
// trailing zeros and break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders a timestamp for storage with nanosecond precision,
// keeping insertion order stable under cursor pagination.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// encodeCursor creates an opaque cursor string from a timestamp and row key.
func encodeCursor(ts time.Time, key string) string {
	return base64.StdEncoding.EncodeToString([]byte(formatTime(ts) + "|" + key))
}

// decodeCursor parses an opaque cursor string into a timestamp and row key.
// Returns an error if the cursor is invalid.
func decodeCursor(cursor string) (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format: expected timestamp|key")
	}

	ts, err := parseTime(parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return ts, parts[1], nil
}

// clampLimit applies the default and cap shared by all paginated queries.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure. modernc.org/sqlite does not export a typed error for this.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE metacharacters so prefixes match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// marshalJSON encodes a payload map, treating nil as an empty object.
func marshalJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalJSON decodes a stored payload column.
func unmarshalJSON(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// marshalVector packs a float32 vector into a little-endian blob.
func marshalVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// unmarshalVector unpacks a little-endian blob into a float32 vector.
func unmarshalVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

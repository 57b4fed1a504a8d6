package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authgate/cmd/internal/ids"
)

const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS authgate;
CREATE TABLE IF NOT EXISTS authgate.sessions (
	id         text PRIMARY KEY,
	data       jsonb NOT NULL,
	expires_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON authgate.sessions (expires_at);
`

// PostgresDataStore implements DataStore using PostgreSQL (authgate.sessions).
// The pool is owned by the caller.
type PostgresDataStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresDataStore creates a Postgres-backed data store.
func NewPostgresDataStore(pool *pgxpool.Pool, now func() time.Time) *PostgresDataStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresDataStore{pool: pool, now: now}
}

// EnsureSchema creates the sessions table when missing.
func (s *PostgresDataStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// Create inserts a new session row and returns its ULID.
func (s *PostgresDataStore) Create(ctx context.Context, data map[string]json.RawMessage, expires time.Time) (string, error) {
	b, err := encodeData(data)
	if err != nil {
		return "", err
	}
	id, err := ids.NewULID(s.now())
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO authgate.sessions (id, data, expires_at)
		VALUES ($1, $2::jsonb, $3)
	`, id, string(b), expires.UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// Read loads a live session row. Expired rows read as missing.
func (s *PostgresDataStore) Read(ctx context.Context, id string) (map[string]json.RawMessage, error) {
	var b []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data
		FROM authgate.sessions
		WHERE id = $1 AND expires_at > $2
	`, id, s.now().UTC()).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeData(b)
}

// Update upserts the row so a concurrently purged session is recreated under the same id.
func (s *PostgresDataStore) Update(ctx context.Context, id string, data map[string]json.RawMessage, expires time.Time) error {
	b, err := encodeData(data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO authgate.sessions (id, data, expires_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
	`, id, string(b), expires.UTC())
	return err
}

func (s *PostgresDataStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM authgate.sessions WHERE id = $1`, id)
	return err
}

// PurgeExpired deletes rows that expired at or before now.
func (s *PostgresDataStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM authgate.sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

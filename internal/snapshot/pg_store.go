package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgQuerier is the subset of pgxpool.Pool the store needs.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore keeps snapshots in the app_snapshots table.
type PgStore struct {
	db pgQuerier
}

func NewPgStore(db pgQuerier) *PgStore {
	if db == nil {
		panic("snapshot: postgres pool required")
	}
	return &PgStore{db: db}
}

func (s *PgStore) Load(ctx context.Context, key Key) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT payload
		FROM app_snapshots
		WHERE key = $1
	`, string(key)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return payload, nil
}

func (s *PgStore) Save(ctx context.Context, key Key, data []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO app_snapshots (key, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		   SET payload = EXCLUDED.payload,
		       updated_at = now()
	`, string(key), data)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS dashboard_snapshots (
	storage_key TEXT PRIMARY KEY,
	blob        JSONB NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps the snapshot as one row keyed by the storage key.
type PostgresStore struct {
	db  *sqlx.DB
	key string
}

func NewPostgresStore(dsn, key string) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure snapshot table: %w", err)
	}
	return &PostgresStore{db: db, key: key}, nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob,
		`SELECT blob FROM dashboard_snapshots WHERE storage_key = $1`, s.key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return blob, nil
}

func (s *PostgresStore) Save(ctx context.Context, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dashboard_snapshots (storage_key, blob, saved_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (storage_key) DO UPDATE SET blob = $2, saved_at = now()`,
		s.key, blob)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

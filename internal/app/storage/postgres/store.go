// Package postgres implements the deposit store backed by PostgreSQL. The
// UNIQUE constraint on signature carries the atomic check-and-insert contract:
// the insert uses ON CONFLICT DO NOTHING and the loser re-reads the winner's
// row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/storage"
)

// Store implements storage.DepositStore on a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.DepositStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// EnsureSchema creates the deposits table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS deposits (
			id          UUID PRIMARY KEY,
			signature   TEXT NOT NULL UNIQUE,
			owner       TEXT NOT NULL,
			lamports    BIGINT NOT NULL CHECK (lamports > 0),
			observed_at TIMESTAMPTZ NOT NULL,
			verified    BOOLEAN NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS deposits_owner_idx ON deposits (owner, created_at);
	`)
	return err
}

type depositRow struct {
	ID         string    `db:"id"`
	Signature  string    `db:"signature"`
	Owner      string    `db:"owner"`
	Lamports   int64     `db:"lamports"`
	ObservedAt time.Time `db:"observed_at"`
	Verified   bool      `db:"verified"`
}

func (r depositRow) record() deposit.Record {
	return deposit.Record{
		ID:         r.ID,
		Signature:  r.Signature,
		Owner:      r.Owner,
		Lamports:   uint64(r.Lamports),
		ObservedAt: r.ObservedAt,
		Verified:   r.Verified,
	}
}

func (s *Store) Put(ctx context.Context, rec deposit.Record) (deposit.Record, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, signature, owner, lamports, observed_at, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signature) DO NOTHING
	`, rec.ID, rec.Signature, rec.Owner, int64(rec.Lamports), rec.ObservedAt.UTC(), rec.Verified, time.Now().UTC())
	if err != nil {
		return deposit.Record{}, false, err
	}

	if rows, _ := result.RowsAffected(); rows == 1 {
		return rec, true, nil
	}

	existing, err := s.Get(ctx, rec.Signature)
	if err != nil {
		return deposit.Record{}, false, err
	}
	return existing, false, nil
}

func (s *Store) Get(ctx context.Context, signature string) (deposit.Record, error) {
	var row depositRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, signature, owner, lamports, observed_at, verified
		FROM deposits
		WHERE signature = $1
	`, signature)
	if errors.Is(err, sql.ErrNoRows) {
		return deposit.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return deposit.Record{}, err
	}
	return row.record(), nil
}

func (s *Store) Has(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM deposits WHERE signature = $1)
	`, signature)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListByOwner(ctx context.Context, owner string) ([]deposit.Record, error) {
	var rows []depositRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, signature, owner, lamports, observed_at, verified
		FROM deposits
		WHERE owner = $1 AND verified
		ORDER BY created_at
	`, owner)
	if err != nil {
		return nil, err
	}

	result := make([]deposit.Record, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.record())
	}
	return result, nil
}

func (s *Store) TotalByOwner(ctx context.Context, owner string) (uint64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(lamports), 0)
		FROM deposits
		WHERE owner = $1 AND verified
	`, owner)
	if err != nil {
		return 0, err
	}
	return uint64(total), nil
}

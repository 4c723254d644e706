// Package storage implements store.Store on Postgres through pgx.
//
// Double booking is closed three ways: writers take a transaction-scoped advisory lock keyed by
// (provider, date), the appointments table carries an exclusion constraint over non-cancelled
// ranges, and callers retry once on ErrSerialization.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rdvmed/clinicsched/libs/db"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *db.Pool and by pgxmock pools.
type DB interface {
	querier
	db.TxBeginner
}

type Options struct {
	// Isolation for write transactions; read committed when empty.
	Isolation pgx.TxIsoLevel
}

type Store struct {
	queries
	db        DB
	outbox    *outbox.Repository
	isolation pgx.TxIsoLevel
}

var _ store.Store = (*Store)(nil)

func New(conn DB, opts Options) *Store {
	if opts.Isolation == "" {
		opts.Isolation = pgx.ReadCommitted
	}
	return &Store{
		queries:   queries{q: conn},
		db:        conn,
		outbox:    outbox.NewRepository(),
		isolation: opts.Isolation,
	}
}

// ParseIsolation maps read_committed|repeatable_read|serializable to a pgx level.
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	switch s {
	case "", "read_committed":
		return pgx.ReadCommitted, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("unknown isolation level %q", s)
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.WithLock(ctx, "", fn)
}

func (s *Store) WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx store.Tx) error) error {
	err := db.WithTx(ctx, s.db, pgx.TxOptions{IsoLevel: s.isolation}, func(tx pgx.Tx) error {
		if key != "" {
			if err := db.LockXact(ctx, tx, key); err != nil {
				return fmt.Errorf("lock %s: %w", key, err)
			}
		}
		return fn(ctx, &pgTx{queries: queries{q: tx}, tx: tx, outbox: s.outbox})
	})
	return mapErr(err)
}

func (s *Store) UpsertPatientProvider(ctx context.Context, patientID, providerID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO patient_providers (patient_id, provider_id, first_booked_at, last_booked_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (patient_id, provider_id) DO UPDATE
		SET last_booked_at = EXCLUDED.last_booked_at
	`, patientID, providerID, at)
	return err
}

type pgTx struct {
	queries
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

// mapErr translates pg errors into the store sentinels, keeping the original in the chain.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrOverlap), errors.Is(err, store.ErrSerialization):
		return err
	case db.IsNotFound(err):
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%w: %w", store.ErrOverlap, err)
	case db.IsSerializationFailure(err):
		return fmt.Errorf("%w: %w", store.ErrSerialization, err)
	default:
		return err
	}
}

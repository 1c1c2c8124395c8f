package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"github.com/robertarktes/cinema-reservations/internal/reservation"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
	CheckViolationCode       = "23514"

	maxTxAttempts = 5
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ reservation.Store = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx runs fn in one SERIALIZABLE transaction and maps store errors onto
// domain errors.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

// InTx retries WithTx with backoff while the store reports serialization
// failures.
func (r *Repository) InTx(ctx context.Context, fn func(q reservation.Queries) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.WithTx(ctx, func(tx pgx.Tx) error {
			return fn(&queries{tx: tx})
		})
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		observability.DBTxRetries.Inc()
		backoff := time.Duration(1<<attempt) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case SerializationFailureCode:
		return errors.Mark(err, domain.ErrSerializationFailure)
	case UniqueViolationCode:
		if pgErr.ConstraintName == "reservations_one_open_per_kind" {
			return errors.Mark(err, domain.ErrActiveReservationExists)
		}
		return errors.Mark(err, domain.ErrConflict)
	case CheckViolationCode:
		switch pgErr.ConstraintName {
		case "fnb_inventories_quantity_non_negative":
			return errors.Mark(err, domain.ErrOutOfStock)
		case "accounts_wallet_non_negative":
			return errors.Mark(err, domain.ErrInsufficientBalance)
		}
		return errors.Mark(err, domain.ErrInvalidInput)
	}
	return err
}

// queries implements reservation.Queries on top of one transaction.
type queries struct {
	tx pgx.Tx
}

var _ reservation.Queries = (*queries)(nil)

func affected(tag pgconn.CommandTag, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

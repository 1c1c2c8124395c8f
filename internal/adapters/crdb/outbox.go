package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

// AppendEvent stores a lifecycle event in the outbox in the caller's
// transaction. The dedupe key makes a repeated transition a no-op.
func (q *queries) AppendEvent(ctx context.Context, e domain.LifecycleEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal lifecycle event")
	}
	_, err = q.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES ($1, 'reservation', $2, $3, $4, 'NEW', $5, $6)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, uuid.New(), e.ReservationID, e.Type, payload, e.Type+":"+e.ReservationID, e.OccurredAt)
	return mapError(err)
}

// RelayOutbox hands up to limit unpublished records to publish, oldest first,
// and marks each one published as soon as publish accepts it. Rows are
// claimed with SKIP LOCKED so several relays can run side by side.
func (r *Repository) RelayOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec OutboxRecord) error) (int, error) {
	var (
		sent       int
		publishErr error
	)
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		sent, publishErr = 0, nil

		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
			FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}
		var records []OutboxRecord
		for rows.Next() {
			var rec OutboxRecord
			if err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload,
				&rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey); err != nil {
				rows.Close()
				return err
			}
			records = append(records, rec)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(records) > 0 {
			observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())
		} else {
			observability.OutboxLag.Set(0)
		}

		for _, rec := range records {
			if err := publish(ctx, rec); err != nil {
				publishErr = errors.Wrapf(err, "publish outbox record %s", rec.ID)
				break
			}
			if _, err := tx.Exec(ctx, `
				UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
			`, rec.ID, time.Now()); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, publishErr
}

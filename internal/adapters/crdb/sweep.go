package crdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-reservations/internal/domain"
)

func (q *queries) PurgeVerifications(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.tx.Exec(ctx, `DELETE FROM verifications WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *queries) ExpiredReservations(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT r.id FROM reservations r
		WHERE r.status = 'PENDING' AND r.expires_at <= $1
		UNION
		SELECT r.id FROM reservations r
		LEFT JOIN payments p ON p.reservation_id = r.id
		WHERE r.status = 'UNPAID' AND COALESCE(p.expires_at, r.expires_at) <= $1
		UNION
		SELECT r.id FROM reservations r
		WHERE r.status = 'CONFIRMED' AND r.kind = 'FNB_ORDER' AND r.pickup_expires_at <= $1
	`, now)
	return collectIDs(rows, err)
}

func (q *queries) CompleteStartedBookings(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	rows, err := q.tx.Query(ctx, `
		UPDATE reservations AS r SET status = 'COMPLETED'
		FROM showtimes AS s
		WHERE s.id = r.target_id AND r.kind = 'BOOKING' AND r.status = 'CONFIRMED' AND s.start_time <= $1
		RETURNING r.id, r.kind, r.status, r.account_id, r.target_id, r.cinema_id, r.expires_at, r.pickup_expires_at, r.created_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) DueAccountDeletions(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := q.tx.Query(ctx, `
		UPDATE accounts SET is_deleted = true, deletion_at = NULL
		WHERE NOT is_deleted AND deletion_at <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OrphanedReservations lists what retired accounts still hold. Re-reading it
// on every sweep finishes work a crashed sweep left behind.
func (q *queries) OrphanedReservations(ctx context.Context) ([]string, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT r.id FROM reservations r
		JOIN accounts a ON a.id = r.account_id
		WHERE a.is_deleted AND r.status IN ('PENDING', 'UNPAID', 'CONFIRMED')
	`)
	return collectIDs(rows, err)
}

func collectIDs(rows pgx.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

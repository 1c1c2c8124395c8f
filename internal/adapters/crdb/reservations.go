package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-reservations/internal/domain"
)

const reservationColumns = `id, kind, status, account_id, target_id, cinema_id, expires_at, pickup_expires_at, created_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.Kind, &r.Status, &r.AccountID, &r.TargetID, &r.CinemaID,
		&r.ExpiresAt, &r.PickupExpiresAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, err
}

func (q *queries) OpenReservation(ctx context.Context, accountID int64, kind domain.Kind) (domain.Reservation, error) {
	return scanReservation(q.tx.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE account_id = $1 AND kind = $2 AND status IN ('PENDING', 'UNPAID')
		LIMIT 1
	`, accountID, kind))
}

func (q *queries) Showtime(ctx context.Context, id int64) (domain.Showtime, error) {
	var st domain.Showtime
	err := q.tx.QueryRow(ctx, `
		SELECT s.id, h.cinema_id, s.start_time, s.is_deleted OR h.is_deleted OR c.is_deleted
		FROM showtimes s
		JOIN halls h ON h.id = s.hall_id
		JOIN cinemas c ON c.id = h.cinema_id
		WHERE s.id = $1
	`, id).Scan(&st.ID, &st.CinemaID, &st.StartTime, &st.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Showtime{}, domain.ErrNotFound
	}
	return st, err
}

func (q *queries) CinemaStocked(ctx context.Context, cinemaID int64) (bool, error) {
	var ok bool
	err := q.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM cinemas c
			JOIN fnb_inventories i ON i.cinema_id = c.id
			WHERE c.id = $1 AND NOT c.is_deleted
		)
	`, cinemaID).Scan(&ok)
	return ok, err
}

func (q *queries) InsertReservation(ctx context.Context, r domain.Reservation) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO reservations (id, kind, status, account_id, target_id, cinema_id, expires_at, pickup_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.Kind, r.Status, r.AccountID, r.TargetID, r.CinemaID, r.ExpiresAt, r.PickupExpiresAt, r.CreatedAt)
	return mapError(err)
}

func (q *queries) Reservation(ctx context.Context, id string) (domain.Reservation, error) {
	r, err := scanReservation(q.tx.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return domain.Reservation{}, err
	}

	rows, err := q.tx.Query(ctx, `
		SELECT reservation_id, showtime_id, seat_id, price, released
		FROM tickets WHERE reservation_id = $1 ORDER BY seat_id
	`, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ReservationID, &t.ShowtimeID, &t.SeatID, &t.Price, &t.Released); err != nil {
			rows.Close()
			return domain.Reservation{}, err
		}
		r.Tickets = append(r.Tickets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Reservation{}, err
	}

	rows, err = q.tx.Query(ctx, `
		SELECT reservation_id, variant_id, quantity, price
		FROM order_items WHERE reservation_id = $1 ORDER BY variant_id
	`, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ReservationID, &it.VariantID, &it.Quantity, &it.Price); err != nil {
			rows.Close()
			return domain.Reservation{}, err
		}
		r.Items = append(r.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Reservation{}, err
	}

	pay, err := scanPayment(q.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE reservation_id = $1
	`, id))
	switch {
	case err == nil:
		r.Payment = &pay
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Reservation{}, err
	}
	return r, nil
}

func (q *queries) DeleteReservation(ctx context.Context, id string, from domain.Status) (bool, error) {
	return affected(q.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1 AND status = $2`, id, from))
}

func (q *queries) Transition(ctx context.Context, t domain.Transition) (bool, error) {
	return affected(q.tx.Exec(ctx, `
		UPDATE reservations SET status = $3, expires_at = $4, pickup_expires_at = $5
		WHERE id = $1 AND status = $2
	`, t.ID, t.From, t.To, t.ExpiresAt, t.PickupExpiresAt))
}

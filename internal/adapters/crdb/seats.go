package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-reservations/internal/domain"
)

func (q *queries) SeatQuote(ctx context.Context, showtimeID, seatID int64) (domain.SeatQuote, error) {
	var sq domain.SeatQuote
	err := q.tx.QueryRow(ctx, `
		SELECT sh.id, se.id, sh.start_time, c.timezone, m.price, e.price, st.column_span, st.price, st.weekend_price
		FROM showtimes sh
		JOIN movies m ON m.id = sh.movie_id
		JOIN halls h ON h.id = sh.hall_id
		JOIN cinemas c ON c.id = h.cinema_id
		JOIN experiences e ON e.id = h.experience_id
		JOIN seats se ON se.hall_id = h.id
		JOIN seat_types st ON st.id = se.seat_type_id
		WHERE sh.id = $1 AND se.id = $2 AND NOT se.is_deleted
	`, showtimeID, seatID).Scan(&sq.ShowtimeID, &sq.SeatID, &sq.StartTime, &sq.TimeZone, &sq.MoviePrice,
		&sq.ExperiencePrice, &sq.ColumnSpan, &sq.SeatPrice, &sq.WeekendPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SeatQuote{}, domain.ErrSeatNotFound
	}
	return sq, err
}

func (q *queries) SeatHolder(ctx context.Context, showtimeID, seatID int64) (string, error) {
	var holder string
	err := q.tx.QueryRow(ctx, `
		SELECT t.reservation_id
		FROM tickets t
		JOIN reservations r ON r.id = t.reservation_id
		WHERE t.showtime_id = $1 AND t.seat_id = $2 AND NOT t.released AND r.status <> 'CANCELED'
		LIMIT 1
	`, showtimeID, seatID).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return holder, err
}

// InsertTicket relies on the partial unique index over live tickets; a lost
// race inserts nothing.
func (q *queries) InsertTicket(ctx context.Context, t domain.Ticket) (bool, error) {
	return affected(q.tx.Exec(ctx, `
		INSERT INTO tickets (reservation_id, showtime_id, seat_id, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (showtime_id, seat_id) WHERE NOT released DO NOTHING
	`, t.ReservationID, t.ShowtimeID, t.SeatID, t.Price))
}

func (q *queries) DeleteTicket(ctx context.Context, reservationID string, seatID int64) (bool, error) {
	return affected(q.tx.Exec(ctx, `
		DELETE FROM tickets WHERE reservation_id = $1 AND seat_id = $2 AND NOT released
	`, reservationID, seatID))
}

func (q *queries) ReleaseTickets(ctx context.Context, reservationID string) error {
	_, err := q.tx.Exec(ctx, `UPDATE tickets SET released = true WHERE reservation_id = $1`, reservationID)
	return err
}

func (q *queries) SeatMap(ctx context.Context, showtimeID int64) ([]domain.SeatState, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT se.id, se.row_label, se.col, st.column_span, st.name,
			EXISTS (
				SELECT 1 FROM tickets t
				JOIN reservations r ON r.id = t.reservation_id
				WHERE t.showtime_id = sh.id AND t.seat_id = se.id AND NOT t.released AND r.status <> 'CANCELED'
			)
		FROM showtimes sh
		JOIN seats se ON se.hall_id = sh.hall_id
		JOIN seat_types st ON st.id = se.seat_type_id
		WHERE sh.id = $1 AND NOT se.is_deleted
		ORDER BY se.row_label, se.col
	`, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.SeatState
	for rows.Next() {
		var s domain.SeatState
		if err := rows.Scan(&s.SeatID, &s.Row, &s.Column, &s.ColumnSpan, &s.SeatType, &s.Taken); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

package reservation

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ToggleSeat selects or deselects a seat on the caller's Pending booking.
// The seat index in the store is the last word on races: a lost insert is
// reported as taken.
func (s *Service) ToggleSeat(ctx context.Context, p domain.Principal, reservationID string, seatID int64, selected bool) error {
	ctx, span := tracer.Start(ctx, "reservation.ToggleSeat", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.Int64("seat.id", seatID),
		attribute.Bool("seat.selected", selected),
	))
	defer span.End()

	var (
		changed domain.SeatChanged
		refresh *domain.RefreshRequested
	)
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		changed, refresh = domain.SeatChanged{}, nil

		r, err := q.Reservation(ctx, reservationID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err != nil || r.Kind != domain.KindBooking || !p.Owns(&r) || !r.IsMutable(now) {
			refresh = &domain.RefreshRequested{AccountID: p.AccountID, View: domain.ViewSeats}
			return domain.ErrNotFound
		}
		stale := &domain.RefreshRequested{AccountID: p.AccountID, View: domain.ViewSeats, TargetID: &r.TargetID}

		quote, err := q.SeatQuote(ctx, r.TargetID, seatID)
		if errors.Is(err, domain.ErrSeatNotFound) {
			refresh = stale
			return err
		}
		if err != nil {
			return err
		}

		if selected {
			if len(r.LiveTickets()) >= s.policy.MaxSeats {
				return domain.ErrSeatLimitReached
			}
			holder, err := q.SeatHolder(ctx, r.TargetID, seatID)
			if err != nil {
				return err
			}
			switch holder {
			case "":
			case r.ID:
				refresh = stale
				return domain.ErrSeatAlreadyYours
			default:
				refresh = stale
				return domain.ErrSeatTaken
			}
			inserted, err := q.InsertTicket(ctx, domain.Ticket{
				ReservationID: r.ID,
				ShowtimeID:    r.TargetID,
				SeatID:        seatID,
				Price:         domain.TicketPrice(quote),
			})
			if err != nil {
				return err
			}
			if !inserted {
				refresh = stale
				return domain.ErrSeatTaken
			}
		} else {
			deleted, err := q.DeleteTicket(ctx, r.ID, seatID)
			if err != nil {
				return err
			}
			if !deleted {
				refresh = stale
				return domain.ErrSeatNotSelected
			}
		}

		changed = domain.SeatChanged{
			ShowtimeID:    r.TargetID,
			SeatID:        seatID,
			Taken:         selected,
			ReservationID: r.ID,
			Status:        r.Status,
		}
		return nil
	})
	if err != nil {
		observability.SeatToggles.WithLabelValues(outcome(err)).Inc()
		if refresh != nil {
			s.broadcast(ctx, *refresh)
		}
		return errors.Wrap(err, "toggle seat")
	}

	observability.SeatToggles.WithLabelValues("ok").Inc()
	s.broadcast(ctx, changed)
	return nil
}

func outcome(err error) string {
	switch domain.Classify(err) {
	case domain.ClassValidation:
		return "invalid"
	case domain.ClassConflict:
		return "conflict"
	case domain.ClassNotFound:
		return "not_found"
	case domain.ClassUnauthorized:
		return "unauthorized"
	case domain.ClassTransient:
		return "retry"
	}
	return "error"
}

package reservation

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	originCustomer = "customer"
	originStaff    = "staff"
	originSweeper  = "sweeper"
	originCreate   = "create"
)

// actor authorizes a cancellation against the loaded reservation.
type actor func(r *domain.Reservation) error

func systemActor(*domain.Reservation) error { return nil }

func principalActor(p domain.Principal) actor {
	return func(r *domain.Reservation) error {
		if !p.CanManage(r) {
			return domain.ErrUnauthorized
		}
		return nil
	}
}

// Cancel cancels a reservation on behalf of its owner or of staff in scope.
// A second cancel of the same reservation fails with ErrNotCancelable.
func (s *Service) Cancel(ctx context.Context, p domain.Principal, reservationID string) error {
	origin := originCustomer
	if p.Role == domain.RoleStaff {
		origin = originStaff
	}
	events, err := s.cancel(ctx, reservationID, principalActor(p), origin)
	if err != nil {
		return errors.Wrap(err, "cancel reservation")
	}
	s.broadcast(ctx, events...)
	return nil
}

type BulkResult struct {
	Canceled int
	Skipped  int
	Failed   int
}

// BulkCancel cancels every id in its own transaction. A failing reservation
// does not stop the rest. Notifications are coalesced per seat and variant
// and sent as one batch once all cancellations have run.
func (s *Service) BulkCancel(ctx context.Context, ids []string) BulkResult {
	var (
		res    BulkResult
		events []domain.Event
	)
	for _, id := range ids {
		evs, err := s.cancel(ctx, id, systemActor, originSweeper)
		if errors.Is(err, domain.ErrNotCancelable) {
			res.Skipped++
			s.logger.WithField("reservation_id", id).Debug("reservation settled before bulk cancel")
			continue
		}
		if err != nil {
			res.Failed++
			s.logger.WithError(err).WithField("reservation_id", id).Error("bulk cancel failed")
			continue
		}
		res.Canceled++
		events = append(events, evs...)
	}

	s.broadcast(ctx, coalesce(events)...)
	return res
}

// cancel runs the shared release and refund logic once per reservation. The
// status guard is applied before any side effect so a concurrent cancel of
// the same row loses with ErrNotCancelable.
func (s *Service) cancel(ctx context.Context, id string, act actor, origin string) ([]domain.Event, error) {
	var (
		events   []domain.Event
		r        domain.Reservation
		from     domain.Status
		refunded decimal.Decimal
	)
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		events, refunded = nil, decimal.Zero

		var err error
		r, err = q.Reservation(ctx, id)
		if err != nil {
			return err
		}
		if err := act(&r); err != nil {
			return err
		}
		plan, err := r.CancelPlan()
		if err != nil {
			return err
		}
		from = r.Status

		var applied bool
		if plan.Delete {
			applied, err = q.DeleteReservation(ctx, r.ID, from)
		} else {
			applied, err = q.Transition(ctx, domain.Transition{ID: r.ID, From: from, To: domain.StatusCanceled})
		}
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrNotCancelable
		}
		r.Status = domain.StatusCanceled

		if r.Kind == domain.KindBooking {
			if !plan.Delete {
				if err := q.ReleaseTickets(ctx, r.ID); err != nil {
					return err
				}
			}
			for _, t := range r.LiveTickets() {
				events = append(events, domain.SeatChanged{
					ShowtimeID:    t.ShowtimeID,
					SeatID:        t.SeatID,
					ReservationID: r.ID,
					Status:        r.Status,
				})
			}
		}
		for _, it := range r.Items {
			if it.Quantity <= 0 {
				continue
			}
			stock, err := q.AdjustStock(ctx, r.CinemaID, it.VariantID, it.Quantity)
			if err != nil {
				return err
			}
			events = append(events, domain.StockChanged{CinemaID: r.CinemaID, VariantID: it.VariantID, Quantity: stock})
		}

		if plan.DeletePayment {
			if err := q.DeletePayment(ctx, r.Payment.ID); err != nil {
				return err
			}
		}
		if plan.Refund {
			pay := r.Payment
			refund := domain.NewWalletTransaction(r.AccountID, pay.Amount, r.Label()+" (Refund)", pay.ID, now)
			if _, err := q.AdjustWallet(ctx, refund); err != nil {
				return err
			}
			refunded = pay.Amount
			if err := q.AppendEvent(ctx, domain.NewLifecycleEvent(domain.EventRefunded, &r, refunded, now)); err != nil {
				return err
			}
		}
		return q.AppendEvent(ctx, domain.NewLifecycleEvent(domain.EventCanceled, &r, refunded, now))
	})
	if err != nil {
		return nil, err
	}

	observability.Cancellations.WithLabelValues(origin, string(from)).Inc()
	s.record(ctx, domain.EventCanceled, r, map[string]any{
		"origin":   origin,
		"from":     string(from),
		"refunded": refunded.String(),
	})
	return events, nil
}

// coalesce keeps one notification per seat and per stock row, the latest
// one winning, in first-seen order.
func coalesce(events []domain.Event) []domain.Event {
	index := make(map[string]int, len(events))
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		key := eventKey(e)
		if key == "" {
			out = append(out, e)
			continue
		}
		if i, ok := index[key]; ok {
			out[i] = e
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	return out
}

func eventKey(e domain.Event) string {
	switch ev := e.(type) {
	case domain.SeatChanged:
		return e.Topic() + ":seat:" + strconv.FormatInt(ev.SeatID, 10)
	case domain.StockChanged:
		return e.Topic() + ":variant:" + strconv.FormatInt(ev.VariantID, 10)
	}
	return ""
}

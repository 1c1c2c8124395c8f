package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
)

const MethodWallet = "wallet"

// Checkout freezes a Pending reservation with at least one line item into
// Unpaid and opens its Payment hold.
func (s *Service) Checkout(ctx context.Context, p domain.Principal, reservationID string) (domain.Payment, error) {
	var (
		payment domain.Payment
		r       domain.Reservation
	)
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		r, err = q.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !p.Owns(&r) || !r.IsMutable(now) {
			return domain.ErrNotFound
		}
		if r.LineItemCount() == 0 {
			return domain.ErrEmptyCart
		}

		payment = domain.NewPayment(&r, now, s.policy.PaymentTTL)
		if err := q.InsertPayment(ctx, payment); err != nil {
			return err
		}
		ok, err := q.Transition(ctx, domain.Transition{
			ID:        r.ID,
			From:      domain.StatusPending,
			To:        domain.StatusUnpaid,
			ExpiresAt: payment.ExpiresAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		r.Status = domain.StatusUnpaid
		r.ExpiresAt = payment.ExpiresAt
		return q.AppendEvent(ctx, domain.NewLifecycleEvent(domain.EventCheckedOut, &r, payment.Amount, now))
	})
	if err != nil {
		return domain.Payment{}, errors.Wrap(err, "checkout")
	}

	s.record(ctx, domain.EventCheckedOut, r, map[string]any{"payment_id": payment.ID, "amount": payment.Amount.String()})
	return payment, nil
}

// ConfirmPayment is called by the payment collaborator once capture
// succeeded. Confirming an already captured payment again is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID, method, details string) (domain.Reservation, error) {
	var (
		r         domain.Reservation
		confirmed bool
	)
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		r, confirmed, err = s.confirm(ctx, q, paymentID, method, details, now)
		return err
	})
	if err != nil {
		return domain.Reservation{}, errors.Wrap(err, "confirm payment")
	}
	if confirmed {
		s.record(ctx, domain.EventConfirmed, r, map[string]any{"payment_id": paymentID, "method": method})
	}
	return r, nil
}

// PayWithWallet settles the caller's own payment from their wallet balance.
func (s *Service) PayWithWallet(ctx context.Context, p domain.Principal, paymentID string) (domain.Reservation, error) {
	var (
		r         domain.Reservation
		confirmed bool
	)
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		pay, err := q.Payment(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.AccountID != p.AccountID {
			return domain.ErrNotFound
		}
		if pay.PaidAt != nil {
			return domain.ErrInvalidState
		}

		r, confirmed, err = s.confirm(ctx, q, paymentID, MethodWallet, "", now)
		if err != nil {
			return err
		}
		debit := domain.NewWalletTransaction(p.AccountID, pay.Amount.Neg(), r.Label(), pay.ID, now)
		_, err = q.AdjustWallet(ctx, debit)
		return err
	})
	if err != nil {
		return domain.Reservation{}, errors.Wrap(err, "pay with wallet")
	}
	if confirmed {
		s.record(ctx, domain.EventConfirmed, r, map[string]any{"payment_id": paymentID, "method": MethodWallet})
	}
	return r, nil
}

func (s *Service) confirm(ctx context.Context, q Queries, paymentID, method, details string, now time.Time) (domain.Reservation, bool, error) {
	pay, err := q.Payment(ctx, paymentID)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	r, err := q.Reservation(ctx, pay.ReservationID)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	if pay.PaidAt != nil && (r.Status == domain.StatusConfirmed || r.Status == domain.StatusCompleted) {
		return r, false, nil
	}
	if r.Status != domain.StatusUnpaid {
		return domain.Reservation{}, false, domain.ErrInvalidState
	}
	if !pay.Payable(now) {
		return domain.Reservation{}, false, domain.ErrNotFound
	}

	paid, err := q.MarkPaid(ctx, pay.ID, method, details, now)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	if !paid {
		return domain.Reservation{}, false, domain.ErrInvalidState
	}

	t := domain.Transition{ID: r.ID, From: domain.StatusUnpaid, To: domain.StatusConfirmed}
	if r.Kind == domain.KindFnbOrder {
		pickup := now.Add(s.policy.PickupWindow)
		t.PickupExpiresAt = &pickup
	}
	ok, err := q.Transition(ctx, t)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	if !ok {
		return domain.Reservation{}, false, domain.ErrInvalidState
	}

	r.Status = domain.StatusConfirmed
	r.ExpiresAt = nil
	r.PickupExpiresAt = t.PickupExpiresAt
	pay.PaidAt, pay.Method, pay.Details = &now, method, details
	pay.ExpiresAt = nil
	r.Payment = &pay
	if err := q.AppendEvent(ctx, domain.NewLifecycleEvent(domain.EventConfirmed, &r, pay.Amount, now)); err != nil {
		return domain.Reservation{}, false, err
	}
	return r, true, nil
}

// CompleteOrder marks a Confirmed F&B order as picked up.
func (s *Service) CompleteOrder(ctx context.Context, p domain.Principal, reservationID string) error {
	if p.Role != domain.RoleStaff {
		return domain.ErrUnauthorized
	}
	var r domain.Reservation
	now := s.now()
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		r, err = q.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Kind != domain.KindFnbOrder {
			return domain.ErrNotFound
		}
		if !p.CanManage(&r) {
			return domain.ErrUnauthorized
		}
		if r.Status != domain.StatusConfirmed {
			return domain.ErrInvalidState
		}
		ok, err := q.Transition(ctx, domain.Transition{ID: r.ID, From: domain.StatusConfirmed, To: domain.StatusCompleted})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidState
		}
		r.Status = domain.StatusCompleted
		r.PickupExpiresAt = nil
		return q.AppendEvent(ctx, domain.NewLifecycleEvent(domain.EventCompleted, &r, r.Total(), now))
	})
	if err != nil {
		return errors.Wrap(err, "complete order")
	}
	s.record(ctx, domain.EventCompleted, r, map[string]any{"staff_id": p.AccountID})
	return nil
}

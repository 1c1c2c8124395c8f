package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func NewReservation(kind Kind, accountID, targetID, cinemaID int64, now time.Time, ttl time.Duration) Reservation {
	expiresAt := now.Add(ttl)
	return Reservation{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusPending,
		AccountID: accountID,
		TargetID:  targetID,
		CinemaID:  cinemaID,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
	}
}

// IsHold reports whether the reservation still holds resources on a timer.
func (r *Reservation) IsHold() bool {
	return r.Status == StatusPending || r.Status == StatusUnpaid
}

// IsLive reports whether a hold is still within its window. Non-hold
// statuses are always live; a hold past its expiry is dead even if the
// sweeper has not reached it yet.
func (r *Reservation) IsLive(now time.Time) bool {
	if !r.IsHold() {
		return true
	}
	return r.ExpiresAt != nil && r.ExpiresAt.After(now)
}

func (r *Reservation) IsMutable(now time.Time) bool {
	return r.Status == StatusPending && r.IsLive(now)
}

func (r *Reservation) Cancelable() bool {
	switch r.Status {
	case StatusPending, StatusUnpaid, StatusConfirmed:
		return true
	}
	return false
}

func (r *Reservation) LiveTickets() []Ticket {
	var out []Ticket
	for _, t := range r.Tickets {
		if !t.Released {
			out = append(out, t)
		}
	}
	return out
}

func (r *Reservation) LineItemCount() int {
	if r.Kind == KindBooking {
		return len(r.LiveTickets())
	}
	return r.CartQuantity()
}

func (r *Reservation) CartQuantity() int {
	total := 0
	for _, it := range r.Items {
		total += it.Quantity
	}
	return total
}

func (r *Reservation) Item(variantID int64) *OrderItem {
	for i := range r.Items {
		if r.Items[i].VariantID == variantID {
			item := r.Items[i]
			return &item
		}
	}
	return nil
}

func (r *Reservation) Total() decimal.Decimal {
	total := decimal.Zero
	if r.Kind == KindBooking {
		for _, t := range r.LiveTickets() {
			total = total.Add(t.Price)
		}
		return total
	}
	for _, it := range r.Items {
		total = total.Add(it.Price)
	}
	return total
}

// Label is the human readable reference used in wallet ledger lines.
func (r *Reservation) Label() string {
	if r.Kind == KindBooking {
		return "Booking #" + r.ID
	}
	return "F&B Order #" + r.ID
}

// CancelPlan describes the side effects of canceling from a given status.
type CancelPlan struct {
	Delete        bool // row is removed outright, nothing was ever charged
	DeletePayment bool
	Refund        bool
}

func (r *Reservation) CancelPlan() (CancelPlan, error) {
	switch r.Status {
	case StatusPending:
		return CancelPlan{Delete: true}, nil
	case StatusUnpaid:
		return CancelPlan{DeletePayment: r.Payment != nil}, nil
	case StatusConfirmed:
		return CancelPlan{Refund: r.Payment != nil && r.Payment.PaidAt != nil}, nil
	}
	return CancelPlan{}, ErrNotCancelable
}

// Transition is a guarded status change: it only applies while the row is
// still in From. ExpiresAt and PickupExpiresAt overwrite the stored values,
// nil clears them.
type Transition struct {
	ID              string
	From            Status
	To              Status
	ExpiresAt       *time.Time
	PickupExpiresAt *time.Time
}

func NewPayment(r *Reservation, now time.Time, ttl time.Duration) Payment {
	expiresAt := now.Add(ttl)
	return Payment{
		ID:            uuid.New().String(),
		ReservationID: r.ID,
		AccountID:     r.AccountID,
		Amount:        r.Total(),
		ExpiresAt:     &expiresAt,
		CreatedAt:     now,
	}
}

func (p *Payment) Payable(now time.Time) bool {
	return p.PaidAt == nil && p.ExpiresAt != nil && p.ExpiresAt.After(now)
}

func NewWalletTransaction(accountID int64, amount decimal.Decimal, description string, paymentID string, now time.Time) WalletTransaction {
	tx := WalletTransaction{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	}
	if paymentID != "" {
		tx.PaymentID = &paymentID
	}
	return tx
}

func NewLifecycleEvent(eventType string, r *Reservation, amount decimal.Decimal, now time.Time) LifecycleEvent {
	return LifecycleEvent{
		Type:          eventType,
		ReservationID: r.ID,
		Kind:          r.Kind,
		AccountID:     r.AccountID,
		Status:        r.Status,
		Amount:        amount,
		OccurredAt:    now,
	}
}

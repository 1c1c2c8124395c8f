package http

import (
	"time"

	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/shopspring/decimal"
)

type ticketView struct {
	SeatID int64           `json:"seat_id"`
	Price  decimal.Decimal `json:"price"`
}

type itemView struct {
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type paymentView struct {
	ID            string          `json:"id"`
	ReservationID string          `json:"reservation_id"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Method        string          `json:"method,omitempty"`
}

type reservationView struct {
	ID              string          `json:"id"`
	Kind            domain.Kind     `json:"kind"`
	Status          domain.Status   `json:"status"`
	TargetID        int64           `json:"target_id"`
	CinemaID        int64           `json:"cinema_id"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	PickupExpiresAt *time.Time      `json:"pickup_expires_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Total           decimal.Decimal `json:"total"`
	Tickets         []ticketView    `json:"tickets,omitempty"`
	Items           []itemView      `json:"items,omitempty"`
	Payment         *paymentView    `json:"payment,omitempty"`
}

func newPaymentView(p domain.Payment) paymentView {
	return paymentView{
		ID:            p.ID,
		ReservationID: p.ReservationID,
		Amount:        p.Amount,
		ExpiresAt:     p.ExpiresAt,
		PaidAt:        p.PaidAt,
		Method:        p.Method,
	}
}

func newReservationView(r domain.Reservation) reservationView {
	v := reservationView{
		ID:              r.ID,
		Kind:            r.Kind,
		Status:          r.Status,
		TargetID:        r.TargetID,
		CinemaID:        r.CinemaID,
		ExpiresAt:       r.ExpiresAt,
		PickupExpiresAt: r.PickupExpiresAt,
		CreatedAt:       r.CreatedAt,
		Total:           r.Total(),
	}
	for _, t := range r.LiveTickets() {
		v.Tickets = append(v.Tickets, ticketView{SeatID: t.SeatID, Price: t.Price})
	}
	for _, it := range r.Items {
		v.Items = append(v.Items, itemView{VariantID: it.VariantID, Quantity: it.Quantity, Price: it.Price})
	}
	if r.Payment != nil {
		p := newPaymentView(*r.Payment)
		v.Payment = &p
	}
	return v
}

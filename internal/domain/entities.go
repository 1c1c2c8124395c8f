package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tells which resource a reservation holds: seats of a showtime or
// stock of a cinema's F&B counter.
type Kind string

const (
	KindBooking  Kind = "BOOKING"
	KindFnbOrder Kind = "FNB_ORDER"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusUnpaid    Status = "UNPAID"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

type Reservation struct {
	ID              string
	Kind            Kind
	Status          Status
	AccountID       int64
	TargetID        int64 // showtime for bookings, cinema for F&B orders
	CinemaID        int64
	ExpiresAt       *time.Time
	PickupExpiresAt *time.Time
	CreatedAt       time.Time
	Tickets         []Ticket
	Items           []OrderItem
	Payment         *Payment
}

type Ticket struct {
	ReservationID string
	ShowtimeID    int64
	SeatID        int64
	Price         decimal.Decimal
	Released      bool
}

// OrderItem keeps the accumulated price of all units, not the unit price.
type OrderItem struct {
	ReservationID string
	VariantID     int64
	Quantity      int
	Price         decimal.Decimal
}

type Payment struct {
	ID            string
	ReservationID string
	AccountID     int64
	Amount        decimal.Decimal
	ExpiresAt     *time.Time
	PaidAt        *time.Time
	Method        string
	Details       string
	CreatedAt     time.Time
}

type WalletTransaction struct {
	ID          string
	AccountID   int64
	Amount      decimal.Decimal
	Description string
	PaymentID   *string
	CreatedAt   time.Time
}

type Showtime struct {
	ID        int64
	CinemaID  int64
	StartTime time.Time
	Deleted   bool
}

// SeatQuote carries every input of the ticket price formula for one seat
// of one showtime.
type SeatQuote struct {
	ShowtimeID      int64
	SeatID          int64
	StartTime       time.Time
	TimeZone        string
	MoviePrice      decimal.Decimal
	ExperiencePrice decimal.Decimal
	ColumnSpan      int
	SeatPrice       decimal.Decimal
	WeekendPrice    decimal.Decimal
}

type SeatState struct {
	SeatID     int64  `json:"seat_id"`
	Row        string `json:"row"`
	Column     int    `json:"column"`
	ColumnSpan int    `json:"column_span"`
	SeatType   string `json:"seat_type"`
	Taken      bool   `json:"taken"`
}

type Inventory struct {
	CinemaID  int64           `json:"cinema_id"`
	VariantID int64           `json:"variant_id"`
	ItemID    int64           `json:"item_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LifecycleEvent is the durable record of a reservation transition, relayed
// through the outbox.
type LifecycleEvent struct {
	Type          string          `json:"type"`
	ReservationID string          `json:"reservation_id"`
	Kind          Kind            `json:"kind"`
	AccountID     int64           `json:"account_id"`
	Status        Status          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

const (
	EventCheckedOut = "reservation.checked_out"
	EventConfirmed  = "reservation.confirmed"
	EventCanceled   = "reservation.canceled"
	EventRefunded   = "reservation.refunded"
	EventCompleted  = "reservation.completed"
)

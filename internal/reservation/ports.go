package reservation

import (
	"context"
	"time"

	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/shopspring/decimal"
)

// Queries is the storage surface available inside one transaction. Lookups
// that find nothing return domain.ErrNotFound or a more specific not-found
// error; guarded writes report whether they applied.
type Queries interface {
	OpenReservation(ctx context.Context, accountID int64, kind domain.Kind) (domain.Reservation, error)
	Showtime(ctx context.Context, id int64) (domain.Showtime, error)
	CinemaStocked(ctx context.Context, cinemaID int64) (bool, error)
	InsertReservation(ctx context.Context, r domain.Reservation) error
	// Reservation loads and locks the row with its tickets, items and payment.
	Reservation(ctx context.Context, id string) (domain.Reservation, error)
	DeleteReservation(ctx context.Context, id string, from domain.Status) (bool, error)
	Transition(ctx context.Context, t domain.Transition) (bool, error)

	SeatQuote(ctx context.Context, showtimeID, seatID int64) (domain.SeatQuote, error)
	// SeatHolder returns the reservation holding an unreleased ticket for the
	// seat, or "" when it is free.
	SeatHolder(ctx context.Context, showtimeID, seatID int64) (string, error)
	InsertTicket(ctx context.Context, t domain.Ticket) (bool, error)
	DeleteTicket(ctx context.Context, reservationID string, seatID int64) (bool, error)
	ReleaseTickets(ctx context.Context, reservationID string) error
	SeatMap(ctx context.Context, showtimeID int64) ([]domain.SeatState, error)

	ItemStocked(ctx context.Context, cinemaID, itemID int64) (bool, error)
	Inventory(ctx context.Context, cinemaID, variantID int64) (domain.Inventory, error)
	// AdjustStock applies delta and returns the new quantity. It fails with
	// domain.ErrOutOfStock instead of going below zero.
	AdjustStock(ctx context.Context, cinemaID, variantID int64, delta int) (int, error)
	SaveOrderItem(ctx context.Context, item domain.OrderItem) error
	DeleteOrderItem(ctx context.Context, reservationID string, variantID int64) error
	StockLevels(ctx context.Context, cinemaID int64) ([]domain.Inventory, error)

	InsertPayment(ctx context.Context, p domain.Payment) error
	Payment(ctx context.Context, id string) (domain.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	// MarkPaid records the capture and clears the payment's expiry.
	MarkPaid(ctx context.Context, id, method, details string, at time.Time) (bool, error)
	// AdjustWallet moves the account balance by tx.Amount and appends tx to
	// the ledger. A debit larger than the balance fails with
	// domain.ErrInsufficientBalance.
	AdjustWallet(ctx context.Context, tx domain.WalletTransaction) (decimal.Decimal, error)

	PurgeVerifications(ctx context.Context, before time.Time) (int64, error)
	ExpiredReservations(ctx context.Context, now time.Time) ([]string, error)
	CompleteStartedBookings(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	DueAccountDeletions(ctx context.Context, now time.Time) ([]int64, error)
	OrphanedReservations(ctx context.Context) ([]string, error)

	AppendEvent(ctx context.Context, e domain.LifecycleEvent) error
}

// Store runs fn in a serializable transaction. Implementations may run fn
// more than once when the transaction has to be retried.
type Store interface {
	InTx(ctx context.Context, fn func(q Queries) error) error
}

type Notifier interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

type Auditor interface {
	Record(ctx context.Context, action string, r domain.Reservation, data map[string]any) error
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

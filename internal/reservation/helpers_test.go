package reservation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"github.com/robertarktes/cinema-reservations/internal/reservation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	showtimeID     int64 = 10
	soonShowtimeID int64 = 11
	cinemaID       int64 = 3
	emptyCinemaID  int64 = 4
	popcornItem    int64 = 7
	popcornSmall   int64 = 100
	popcornLarge   int64 = 101
	sodaItem       int64 = 8
	sodaSoldOut    int64 = 200
	twinSeat       int64 = 13
)

const (
	popcornStock  = 5
	popcornLStock = 50
)

var (
	// a Wednesday
	baseTime = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	customerX = domain.Principal{AccountID: 1, Role: domain.RoleCustomer}
	customerY = domain.Principal{AccountID: 2, Role: domain.RoleCustomer}
)

func staffAt(cinema int64) domain.Principal {
	return domain.Principal{AccountID: 900 + cinema, Role: domain.RoleStaff, CinemaID: &cinema}
}

var hqStaff = domain.Principal{AccountID: 999, Role: domain.RoleStaff}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	fail   error
}

func (r *recorder) Publish(_ context.Context, events ...domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) take() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func seatEvents(events []domain.Event) []domain.SeatChanged {
	var out []domain.SeatChanged
	for _, e := range events {
		if sc, ok := e.(domain.SeatChanged); ok {
			out = append(out, sc)
		}
	}
	return out
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memStore
	clock *clock
	notes *recorder
	svc   *reservation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: newMemStore(),
		clock: &clock{now: baseTime},
		notes: &recorder{},
	}
	f.seed()
	f.svc = reservation.NewService(f.store, f.notes, nil, domain.DefaultPolicy(), observability.NewNopLogger(),
		reservation.WithClock(f.clock.Now))
	return f
}

func (f *fixture) seed() {
	st := f.store.state
	st.showtimes[showtimeID] = domain.Showtime{ID: showtimeID, CinemaID: cinemaID, StartTime: baseTime.Add(11 * time.Hour)}
	st.showtimes[soonShowtimeID] = domain.Showtime{ID: soonShowtimeID, CinemaID: cinemaID, StartTime: baseTime.Add(10 * time.Minute)}
	for seat := int64(1); seat <= twinSeat; seat++ {
		span := 1
		if seat == twinSeat {
			span = 2
		}
		for _, show := range []int64{showtimeID, soonShowtimeID} {
			st.quotes[[2]int64{show, seat}] = domain.SeatQuote{
				ShowtimeID:      show,
				SeatID:          seat,
				StartTime:       st.showtimes[show].StartTime,
				MoviePrice:      decimal.RequireFromString("12"),
				ExperiencePrice: decimal.RequireFromString("3.5"),
				ColumnSpan:      span,
				SeatPrice:       decimal.RequireFromString("2"),
				WeekendPrice:    decimal.RequireFromString("4"),
			}
		}
	}
	st.stock[[2]int64{cinemaID, popcornSmall}] = domain.Inventory{CinemaID: cinemaID, VariantID: popcornSmall, ItemID: popcornItem, Quantity: popcornStock, UnitPrice: decimal.RequireFromString("6.5")}
	st.stock[[2]int64{cinemaID, popcornLarge}] = domain.Inventory{CinemaID: cinemaID, VariantID: popcornLarge, ItemID: popcornItem, Quantity: popcornLStock, UnitPrice: decimal.RequireFromString("4")}
	st.stock[[2]int64{cinemaID, sodaSoldOut}] = domain.Inventory{CinemaID: cinemaID, VariantID: sodaSoldOut, ItemID: sodaItem, Quantity: 0, UnitPrice: decimal.RequireFromString("3")}
}

func (f *fixture) setBalance(account int64, amount string) {
	f.store.read(func(st *memState) {
		acc := st.accounts[account]
		acc.balance = decimal.RequireFromString(amount)
		st.accounts[account] = acc
	})
}

func (f *fixture) balance(account int64) decimal.Decimal {
	var b decimal.Decimal
	f.store.read(func(st *memState) { b = st.accounts[account].balance })
	return b
}

func (f *fixture) ledger() []domain.WalletTransaction {
	var out []domain.WalletTransaction
	f.store.read(func(st *memState) { out = append(out, st.ledger...) })
	return out
}

func (f *fixture) stock(variant int64) int {
	var q int
	f.store.read(func(st *memState) { q = st.stock[[2]int64{cinemaID, variant}].Quantity })
	return q
}

func (f *fixture) stored(id string) (domain.Reservation, bool) {
	var (
		r  domain.Reservation
		ok bool
	)
	f.store.read(func(st *memState) { r, ok = st.reservations[id] })
	return r, ok
}

func (f *fixture) payment(reservationID string) (domain.Payment, bool) {
	var (
		p  domain.Payment
		ok bool
	)
	f.store.read(func(st *memState) {
		for _, pay := range st.payments {
			if pay.ReservationID == reservationID {
				p, ok = pay, true
			}
		}
	})
	return p, ok
}

func (f *fixture) liveTicketsFor(seat int64) int {
	n := 0
	f.store.read(func(st *memState) {
		for _, t := range st.tickets {
			if t.ShowtimeID == showtimeID && t.SeatID == seat && !t.Released {
				n++
			}
		}
	})
	return n
}

func (f *fixture) booking(p domain.Principal) domain.Reservation {
	f.t.Helper()
	r, err := f.svc.Create(f.ctx, p, domain.KindBooking, showtimeID)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) order(p domain.Principal) domain.Reservation {
	f.t.Helper()
	r, err := f.svc.Create(f.ctx, p, domain.KindFnbOrder, cinemaID)
	require.NoError(f.t, err)
	return r
}

// confirmedBooking walks a booking for p with the given seats through
// checkout and payment.
func (f *fixture) confirmedBooking(p domain.Principal, seats ...int64) (domain.Reservation, domain.Payment) {
	f.t.Helper()
	r := f.booking(p)
	for _, seat := range seats {
		require.NoError(f.t, f.svc.ToggleSeat(f.ctx, p, r.ID, seat, true))
	}
	pay, err := f.svc.Checkout(f.ctx, p, r.ID)
	require.NoError(f.t, err)
	confirmed, err := f.svc.ConfirmPayment(f.ctx, pay.ID, "card", "")
	require.NoError(f.t, err)
	return confirmed, pay
}

package reservation_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/reservation"
	"github.com/shopspring/decimal"
)

type memAccount struct {
	balance    decimal.Decimal
	deleted    bool
	deletionAt *time.Time
}

type memState struct {
	accounts      map[int64]memAccount
	showtimes     map[int64]domain.Showtime
	quotes        map[[2]int64]domain.SeatQuote
	stock         map[[2]int64]domain.Inventory
	reservations  map[string]domain.Reservation
	tickets       []domain.Ticket
	items         map[string]map[int64]domain.OrderItem
	payments      map[string]domain.Payment
	ledger        []domain.WalletTransaction
	events        []domain.LifecycleEvent
	verifications map[string]time.Time
}

func newMemState() *memState {
	return &memState{
		accounts:      map[int64]memAccount{},
		showtimes:     map[int64]domain.Showtime{},
		quotes:        map[[2]int64]domain.SeatQuote{},
		stock:         map[[2]int64]domain.Inventory{},
		reservations:  map[string]domain.Reservation{},
		items:         map[string]map[int64]domain.OrderItem{},
		payments:      map[string]domain.Payment{},
		verifications: map[string]time.Time{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.showtimes {
		c.showtimes[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	c.tickets = append([]domain.Ticket(nil), s.tickets...)
	for k, v := range s.items {
		m := make(map[int64]domain.OrderItem, len(v))
		for vk, vv := range v {
			m[vk] = vv
		}
		c.items[k] = m
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.ledger = append([]domain.WalletTransaction(nil), s.ledger...)
	c.events = append([]domain.LifecycleEvent(nil), s.events...)
	for k, v := range s.verifications {
		c.verifications[k] = v
	}
	return c
}

// memStore serializes transactions under one mutex and rolls state back
// when fn fails. conflicts makes the next n attempts fail with a
// serialization error after fn ran, the way a contended store would.
// purgeErr fails every verification purge.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	conflicts int
	attempts  int
	purgeErr  error
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) InTx(ctx context.Context, fn func(q reservation.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		m.attempts++
		snapshot := m.state.clone()
		err := fn(&memQueries{st: m.state, purgeErr: m.purgeErr})
		if err == nil && m.conflicts > 0 {
			m.conflicts--
			err = domain.ErrSerializationFailure
		}
		if err == nil {
			return nil
		}
		m.state = snapshot
		if errors.Is(err, domain.ErrSerializationFailure) {
			continue
		}
		return err
	}
}

// read runs fn against the committed state.
func (m *memStore) read(fn func(st *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

type memQueries struct {
	st       *memState
	purgeErr error
}

var _ reservation.Queries = (*memQueries)(nil)

func isOpen(st domain.Status) bool {
	return st == domain.StatusPending || st == domain.StatusUnpaid
}

func (q *memQueries) OpenReservation(_ context.Context, accountID int64, kind domain.Kind) (domain.Reservation, error) {
	for _, r := range q.st.reservations {
		if r.AccountID == accountID && r.Kind == kind && isOpen(r.Status) {
			return r, nil
		}
	}
	return domain.Reservation{}, domain.ErrNotFound
}

func (q *memQueries) Showtime(_ context.Context, id int64) (domain.Showtime, error) {
	st, ok := q.st.showtimes[id]
	if !ok {
		return domain.Showtime{}, domain.ErrNotFound
	}
	return st, nil
}

func (q *memQueries) CinemaStocked(_ context.Context, cinemaID int64) (bool, error) {
	for k := range q.st.stock {
		if k[0] == cinemaID {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) InsertReservation(ctx context.Context, r domain.Reservation) error {
	if _, err := q.OpenReservation(ctx, r.AccountID, r.Kind); err == nil {
		return domain.ErrActiveReservationExists
	}
	r.Tickets, r.Items, r.Payment = nil, nil, nil
	q.st.reservations[r.ID] = r
	return nil
}

func (q *memQueries) Reservation(_ context.Context, id string) (domain.Reservation, error) {
	r, ok := q.st.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	for _, t := range q.st.tickets {
		if t.ReservationID == id {
			r.Tickets = append(r.Tickets, t)
		}
	}
	for _, it := range q.st.items[id] {
		r.Items = append(r.Items, it)
	}
	sort.Slice(r.Items, func(i, j int) bool { return r.Items[i].VariantID < r.Items[j].VariantID })
	for _, p := range q.st.payments {
		if p.ReservationID == id {
			pay := p
			r.Payment = &pay
		}
	}
	return r, nil
}

func (q *memQueries) DeleteReservation(_ context.Context, id string, from domain.Status) (bool, error) {
	r, ok := q.st.reservations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	delete(q.st.reservations, id)
	delete(q.st.items, id)
	kept := q.st.tickets[:0]
	for _, t := range q.st.tickets {
		if t.ReservationID != id {
			kept = append(kept, t)
		}
	}
	q.st.tickets = kept
	for pid, p := range q.st.payments {
		if p.ReservationID == id {
			delete(q.st.payments, pid)
		}
	}
	return true, nil
}

func (q *memQueries) Transition(_ context.Context, t domain.Transition) (bool, error) {
	r, ok := q.st.reservations[t.ID]
	if !ok || r.Status != t.From {
		return false, nil
	}
	r.Status = t.To
	r.ExpiresAt = t.ExpiresAt
	r.PickupExpiresAt = t.PickupExpiresAt
	q.st.reservations[t.ID] = r
	return true, nil
}

func (q *memQueries) SeatQuote(_ context.Context, showtimeID, seatID int64) (domain.SeatQuote, error) {
	quote, ok := q.st.quotes[[2]int64{showtimeID, seatID}]
	if !ok {
		return domain.SeatQuote{}, domain.ErrSeatNotFound
	}
	return quote, nil
}

func (q *memQueries) SeatHolder(_ context.Context, showtimeID, seatID int64) (string, error) {
	for _, t := range q.st.tickets {
		if t.ShowtimeID == showtimeID && t.SeatID == seatID && !t.Released {
			return t.ReservationID, nil
		}
	}
	return "", nil
}

func (q *memQueries) InsertTicket(ctx context.Context, t domain.Ticket) (bool, error) {
	if holder, _ := q.SeatHolder(ctx, t.ShowtimeID, t.SeatID); holder != "" {
		return false, nil
	}
	q.st.tickets = append(q.st.tickets, t)
	return true, nil
}

func (q *memQueries) DeleteTicket(_ context.Context, reservationID string, seatID int64) (bool, error) {
	for i, t := range q.st.tickets {
		if t.ReservationID == reservationID && t.SeatID == seatID && !t.Released {
			q.st.tickets = append(q.st.tickets[:i], q.st.tickets[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) ReleaseTickets(_ context.Context, reservationID string) error {
	for i := range q.st.tickets {
		if q.st.tickets[i].ReservationID == reservationID {
			q.st.tickets[i].Released = true
		}
	}
	return nil
}

func (q *memQueries) SeatMap(ctx context.Context, showtimeID int64) ([]domain.SeatState, error) {
	var seats []domain.SeatState
	for k, quote := range q.st.quotes {
		if k[0] != showtimeID {
			continue
		}
		holder, _ := q.SeatHolder(ctx, showtimeID, k[1])
		seats = append(seats, domain.SeatState{SeatID: k[1], ColumnSpan: quote.ColumnSpan, Taken: holder != ""})
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].SeatID < seats[j].SeatID })
	return seats, nil
}

func (q *memQueries) ItemStocked(_ context.Context, cinemaID, itemID int64) (bool, error) {
	for k, inv := range q.st.stock {
		if k[0] == cinemaID && inv.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) Inventory(_ context.Context, cinemaID, variantID int64) (domain.Inventory, error) {
	inv, ok := q.st.stock[[2]int64{cinemaID, variantID}]
	if !ok {
		return domain.Inventory{}, domain.ErrVariantNotFound
	}
	return inv, nil
}

func (q *memQueries) AdjustStock(_ context.Context, cinemaID, variantID int64, delta int) (int, error) {
	key := [2]int64{cinemaID, variantID}
	inv, ok := q.st.stock[key]
	if !ok {
		return 0, domain.ErrVariantNotFound
	}
	if inv.Quantity+delta < 0 {
		return inv.Quantity, domain.ErrOutOfStock
	}
	inv.Quantity += delta
	q.st.stock[key] = inv
	return inv.Quantity, nil
}

func (q *memQueries) SaveOrderItem(_ context.Context, item domain.OrderItem) error {
	m, ok := q.st.items[item.ReservationID]
	if !ok {
		m = map[int64]domain.OrderItem{}
		q.st.items[item.ReservationID] = m
	}
	m[item.VariantID] = item
	return nil
}

func (q *memQueries) DeleteOrderItem(_ context.Context, reservationID string, variantID int64) error {
	delete(q.st.items[reservationID], variantID)
	return nil
}

func (q *memQueries) StockLevels(_ context.Context, cinemaID int64) ([]domain.Inventory, error) {
	var out []domain.Inventory
	for k, inv := range q.st.stock {
		if k[0] == cinemaID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

func (q *memQueries) InsertPayment(_ context.Context, p domain.Payment) error {
	q.st.payments[p.ID] = p
	return nil
}

func (q *memQueries) Payment(_ context.Context, id string) (domain.Payment, error) {
	p, ok := q.st.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (q *memQueries) DeletePayment(_ context.Context, id string) error {
	delete(q.st.payments, id)
	return nil
}

func (q *memQueries) MarkPaid(_ context.Context, id, method, details string, at time.Time) (bool, error) {
	p, ok := q.st.payments[id]
	if !ok || p.PaidAt != nil {
		return false, nil
	}
	p.PaidAt, p.Method, p.Details = &at, method, details
	p.ExpiresAt = nil
	q.st.payments[id] = p
	return true, nil
}

func (q *memQueries) AdjustWallet(_ context.Context, tx domain.WalletTransaction) (decimal.Decimal, error) {
	acc := q.st.accounts[tx.AccountID]
	next := acc.balance.Add(tx.Amount)
	if next.IsNegative() {
		return acc.balance, domain.ErrInsufficientBalance
	}
	acc.balance = next
	q.st.accounts[tx.AccountID] = acc
	q.st.ledger = append(q.st.ledger, tx)
	return next, nil
}

func (q *memQueries) PurgeVerifications(_ context.Context, before time.Time) (int64, error) {
	if q.purgeErr != nil {
		return 0, q.purgeErr
	}
	var n int64
	for k, created := range q.st.verifications {
		if created.Before(before) {
			delete(q.st.verifications, k)
			n++
		}
	}
	return n, nil
}

func (q *memQueries) ExpiredReservations(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	for id, r := range q.st.reservations {
		switch {
		case r.Status == domain.StatusPending && r.ExpiresAt != nil && !r.ExpiresAt.After(now):
		case r.Status == domain.StatusUnpaid && q.paymentLapsed(id, r, now):
		case r.Status == domain.StatusConfirmed && r.Kind == domain.KindFnbOrder &&
			r.PickupExpiresAt != nil && !r.PickupExpiresAt.After(now):
		default:
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (q *memQueries) paymentLapsed(id string, r domain.Reservation, now time.Time) bool {
	for _, p := range q.st.payments {
		if p.ReservationID == id {
			return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
		}
	}
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

func (q *memQueries) CompleteStartedBookings(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for id, r := range q.st.reservations {
		if r.Kind != domain.KindBooking || r.Status != domain.StatusConfirmed {
			continue
		}
		st, ok := q.st.showtimes[r.TargetID]
		if !ok || st.StartTime.After(now) {
			continue
		}
		r.Status = domain.StatusCompleted
		q.st.reservations[id] = r
		out = append(out, r)
	}
	return out, nil
}

func (q *memQueries) DueAccountDeletions(_ context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	for id, acc := range q.st.accounts {
		if acc.deleted || acc.deletionAt == nil || acc.deletionAt.After(now) {
			continue
		}
		acc.deleted, acc.deletionAt = true, nil
		q.st.accounts[id] = acc
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *memQueries) OrphanedReservations(_ context.Context) ([]string, error) {
	var ids []string
	for id, r := range q.st.reservations {
		if q.st.accounts[r.AccountID].deleted && r.Cancelable() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (q *memQueries) AppendEvent(_ context.Context, e domain.LifecycleEvent) error {
	q.st.events = append(q.st.events, e)
	return nil
}

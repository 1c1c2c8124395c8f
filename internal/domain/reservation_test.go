package domain_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservation_IsLive(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	r := domain.NewReservation(domain.KindBooking, 1, 10, 3, now, 5*time.Minute)

	assert.Equal(t, domain.StatusPending, r.Status)
	assert.True(t, r.IsLive(now))
	assert.True(t, r.IsMutable(now.Add(4*time.Minute)))
	assert.False(t, r.IsLive(now.Add(5*time.Minute)), "a hold is dead at its expiry instant")
	assert.False(t, r.IsMutable(now.Add(6*time.Minute)))

	r.Status = domain.StatusConfirmed
	r.ExpiresAt = nil
	assert.True(t, r.IsLive(now.Add(time.Hour)))
	assert.False(t, r.IsMutable(now))
}

func TestReservation_CancelPlan(t *testing.T) {
	paidAt := time.Now()
	payment := &domain.Payment{ID: "p1", Amount: decimal.NewFromInt(20)}
	paid := &domain.Payment{ID: "p2", Amount: decimal.NewFromInt(20), PaidAt: &paidAt}

	tests := []struct {
		name    string
		status  domain.Status
		payment *domain.Payment
		want    domain.CancelPlan
		wantErr error
	}{
		{"pending is deleted", domain.StatusPending, nil, domain.CancelPlan{Delete: true}, nil},
		{"unpaid drops payment", domain.StatusUnpaid, payment, domain.CancelPlan{DeletePayment: true}, nil},
		{"confirmed refunds", domain.StatusConfirmed, paid, domain.CancelPlan{Refund: true}, nil},
		{"completed is terminal", domain.StatusCompleted, paid, domain.CancelPlan{}, domain.ErrNotCancelable},
		{"canceled is terminal", domain.StatusCanceled, nil, domain.CancelPlan{}, domain.ErrNotCancelable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := domain.Reservation{Status: tt.status, Payment: tt.payment}
			plan, err := r.CancelPlan()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan)
		})
	}
}

func TestReservation_TotalIgnoresReleasedTickets(t *testing.T) {
	r := domain.Reservation{
		Kind: domain.KindBooking,
		Tickets: []domain.Ticket{
			{SeatID: 1, Price: decimal.RequireFromString("10.25")},
			{SeatID: 2, Price: decimal.RequireFromString("4.75")},
			{SeatID: 3, Price: decimal.RequireFromString("99"), Released: true},
		},
	}
	assert.True(t, r.Total().Equal(decimal.NewFromInt(15)))
	assert.Equal(t, 2, r.LineItemCount())
}

func TestPrincipal_CanManage(t *testing.T) {
	cinema := int64(3)
	other := int64(4)
	r := &domain.Reservation{AccountID: 7, CinemaID: cinema}

	assert.True(t, domain.Principal{AccountID: 7, Role: domain.RoleCustomer}.CanManage(r))
	assert.False(t, domain.Principal{AccountID: 8, Role: domain.RoleCustomer}.CanManage(r))
	assert.True(t, domain.Principal{AccountID: 1, Role: domain.RoleStaff, CinemaID: &cinema}.CanManage(r))
	assert.False(t, domain.Principal{AccountID: 1, Role: domain.RoleStaff, CinemaID: &other}.CanManage(r))
	assert.True(t, domain.Principal{AccountID: 1, Role: domain.RoleStaff}.CanManage(r))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.ClassConflict, domain.Classify(errors.Wrap(domain.ErrSeatTaken, "toggle seat")))
	assert.Equal(t, domain.ClassNotFound, domain.Classify(domain.ErrNotInCart))
	assert.Equal(t, domain.ClassValidation, domain.Classify(domain.ErrEmptyCart))
	assert.Equal(t, domain.ClassUnauthorized, domain.Classify(domain.ErrUnauthorized))
	assert.Equal(t, domain.ClassTransient, domain.Classify(domain.ErrSerializationFailure))
	assert.Equal(t, domain.ClassInternal, domain.Classify(errors.New("boom")))
}

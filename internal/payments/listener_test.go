package payments

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfirmer struct {
	err   error
	calls []Captured
}

func (s *stubConfirmer) ConfirmPayment(_ context.Context, paymentID, method, details string) (domain.Reservation, error) {
	s.calls = append(s.calls, Captured{PaymentID: paymentID, Method: method, Details: details})
	if s.err != nil {
		return domain.Reservation{}, s.err
	}
	return domain.Reservation{ID: "r1", Status: domain.StatusConfirmed}, nil
}

type ackRecorder struct {
	acked, nacked, requeued int
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func TestListener_Handle(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		confirmErr  error
		wantRequeue bool
		wantErr     bool
		wantCalls   int
	}{
		{name: "confirmed", body: `{"payment_id":"p1","method":"card","details":"visa"}`, wantCalls: 1},
		{name: "malformed", body: `{`, wantErr: true},
		{name: "missing method", body: `{"payment_id":"p1"}`, wantErr: true},
		{name: "expired payment", body: `{"payment_id":"p1","method":"card"}`, confirmErr: domain.ErrNotFound, wantErr: true, wantCalls: 1},
		{name: "wrong state", body: `{"payment_id":"p1","method":"card"}`, confirmErr: errors.Wrap(domain.ErrInvalidState, "canceled"), wantErr: true, wantCalls: 1},
		{name: "serialization", body: `{"payment_id":"p1","method":"card"}`, confirmErr: domain.ErrSerializationFailure, wantRequeue: true, wantErr: true, wantCalls: 1},
		{name: "store down", body: `{"payment_id":"p1","method":"card"}`, confirmErr: errors.New("connection refused"), wantRequeue: true, wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &stubConfirmer{err: tt.confirmErr}
			l := NewListener(c, observability.NewNopLogger())

			requeue, err := l.Handle(context.Background(), []byte(tt.body))
			assert.Equal(t, tt.wantRequeue, requeue)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Len(t, c.calls, tt.wantCalls)
		})
	}
}

func TestListener_RunAcksAndNacks(t *testing.T) {
	c := &stubConfirmer{}
	l := NewListener(c, observability.NewNopLogger())
	acks := &ackRecorder{}

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte(`{"payment_id":"p1","method":"card"}`)}
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte(`garbage`)}
	close(deliveries)

	require.NoError(t, l.Run(context.Background(), deliveries))
	assert.Equal(t, 2, acks.acked)
	assert.Zero(t, acks.nacked)

	c.err = domain.ErrSerializationFailure
	deliveries = make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`{"payment_id":"p2","method":"card"}`)}
	close(deliveries)

	require.NoError(t, l.Run(context.Background(), deliveries))
	assert.Equal(t, 1, acks.requeued)
}

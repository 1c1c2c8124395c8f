// Package payments turns payment-provider capture notifications into
// reservation confirmations.
package payments

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
)

type Confirmer interface {
	ConfirmPayment(ctx context.Context, paymentID, method, details string) (domain.Reservation, error)
}

// Captured is the body of a payments.captured message and of the HTTP callback.
type Captured struct {
	PaymentID string `json:"payment_id"`
	Method    string `json:"method"`
	Details   string `json:"details"`
}

func (c Captured) Validate() error {
	if c.PaymentID == "" || c.Method == "" {
		return errors.Wrap(domain.ErrInvalidInput, "payment_id and method are required")
	}
	return nil
}

type Listener struct {
	confirmer Confirmer
	logger    observability.Logger
}

func NewListener(confirmer Confirmer, logger observability.Logger) *Listener {
	return &Listener{confirmer: confirmer, logger: logger}
}

// Run consumes until deliveries closes or ctx is done.
func (l *Listener) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			requeue, err := l.Handle(ctx, d.Body)
			if err != nil && requeue {
				if nackErr := d.Nack(false, true); nackErr != nil {
					return errors.Wrap(nackErr, "nack delivery")
				}
				continue
			}
			if ackErr := d.Ack(false); ackErr != nil {
				return errors.Wrap(ackErr, "ack delivery")
			}
		}
	}
}

// Handle confirms one captured payment. requeue is true only when err is
// worth retrying later.
func (l *Listener) Handle(ctx context.Context, body []byte) (requeue bool, err error) {
	var msg Captured
	if err := json.Unmarshal(body, &msg); err != nil {
		l.logger.WithError(err).Warn("dropping malformed payment message")
		return false, errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	if err := msg.Validate(); err != nil {
		l.logger.WithError(err).Warn("dropping incomplete payment message")
		return false, err
	}

	log := l.logger.WithField("payment_id", msg.PaymentID)
	r, err := l.confirmer.ConfirmPayment(ctx, msg.PaymentID, msg.Method, msg.Details)
	if err != nil {
		switch domain.Classify(err) {
		case domain.ClassTransient, domain.ClassInternal:
			log.WithError(err).Warn("payment confirmation failed, requeueing")
			return true, err
		}
		log.WithError(err).Info("payment not confirmable")
		return false, err
	}
	log.WithField("reservation_id", r.ID).Info("payment confirmed")
	return false, nil
}

package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/cinema-reservations/internal/adapters/crdb"
	"github.com/robertarktes/cinema-reservations/internal/observability"
)

const defaultBatch = 50

type Relay interface {
	RelayOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec crdb.OutboxRecord) error) (int, error)
}

type Sender interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	repo   Relay
	sender Sender
	logger observability.Logger
	batch  int
}

func NewPublisher(repo Relay, sender Sender, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, sender: sender, logger: logger, batch: defaultBatch}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Flush(ctx)
			if err != nil {
				p.logger.WithError(err).Warn("outbox relay failed")
			}
			if n > 0 {
				p.logger.WithField("published", n).Debug("outbox relayed")
			}
		}
	}
}

// Flush relays batches until the outbox is drained or a publish fails. A
// failed record stays NEW and is retried on the next tick.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.repo.RelayOutbox(ctx, p.batch, p.publish)
		total += n
		if err != nil {
			return total, err
		}
		if n < p.batch {
			return total, nil
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec crdb.OutboxRecord) error {
	msg := amqp.Publishing{
		MessageId:    rec.DedupeKey,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         rec.EventType,
		Timestamp:    rec.CreatedAt,
		Body:         rec.Payload,
	}
	if err := p.sender.Publish(ctx, rec.EventType, msg); err != nil {
		observability.RabbitPublishRetries.Inc()
		return err
	}
	return nil
}

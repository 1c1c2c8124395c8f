package redis

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/cinema-reservations/internal/domain"
)

const channelPrefix = "cinema:events:"

type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Message is one event received on a subscribed topic.
type Message struct {
	Topic   string
	Name    string
	Payload json.RawMessage
}

// Broadcaster fans domain events out over redis pub/sub, one channel per topic.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.Wrapf(err, "encode %s", e.Name())
		}
		data, err := json.Marshal(envelope{Name: e.Name(), Payload: payload})
		if err != nil {
			return err
		}
		pipe.Publish(ctx, channelPrefix+e.Topic(), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe streams events for the given topics until ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context, topics ...string) (<-chan Message, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channelPrefix + t
	}

	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribe")
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				m := Message{
					Topic:   strings.TrimPrefix(msg.Channel, channelPrefix),
					Name:    env.Name,
					Payload: env.Payload,
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

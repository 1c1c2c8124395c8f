package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/cinema-reservations/internal/adapters/redis"
)

// ErrInFlight is returned when another request holding the same key has not
// finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	redis Store
	ttl   time.Duration
}

func NewIdempotency(redis Store, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}

// Begin returns the stored response for key if there is one. Otherwise it
// claims key for the caller, who must call Finish.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if resp, err := i.Get(ctx, key); err != nil || resp != nil {
		return resp, err
	}
	ok, err := i.redis.Claim(ctx, key, time.Minute)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

// Finish stores resp unless it is a server error, which stays retryable, and
// drops the claim.
func (i *Idempotency) Finish(ctx context.Context, key string, resp Response) error {
	var err error
	if resp.Status < 500 {
		err = i.Set(ctx, key, resp)
	}
	return errors.CombineErrors(err, i.redis.Release(ctx, key))
}

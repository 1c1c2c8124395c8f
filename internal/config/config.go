package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/robertarktes/cinema-reservations/internal/domain"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	OTLPEndpoint string
	HTTPAddr     string
	LogLevel     string

	PendingTTL        time.Duration
	PaymentTTL        time.Duration
	PickupWindow      time.Duration
	BookingCutoff     time.Duration
	VerificationGrace time.Duration
	MaxSeats          int
	MaxCartItems      int

	SweepInterval  time.Duration
	SweepMinGap    time.Duration
	OutboxPoll     time.Duration
	IdempotencyTTL time.Duration
	RateLimit      int
	RatePeriod     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	l := loader{}
	defaults := domain.DefaultPolicy()

	cfg := &Config{
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      envOr("MONGO_DB", "cinema"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		LogLevel:     envOr("LOG_LEVEL", "info"),

		PendingTTL:        l.duration("PENDING_TTL", defaults.PendingTTL),
		PaymentTTL:        l.duration("PAYMENT_TTL", defaults.PaymentTTL),
		PickupWindow:      l.duration("PICKUP_WINDOW", defaults.PickupWindow),
		BookingCutoff:     l.duration("BOOKING_CUTOFF", defaults.BookingCutoff),
		VerificationGrace: l.duration("VERIFICATION_GRACE", defaults.VerificationGrace),
		MaxSeats:          l.int("MAX_SEATS_PER_BOOKING", defaults.MaxSeats),
		MaxCartItems:      l.int("MAX_CART_ITEMS", defaults.MaxCartItems),

		SweepInterval:  l.duration("SWEEP_INTERVAL", time.Minute),
		SweepMinGap:    l.duration("SWEEP_ON_REQUEST_MIN_GAP", 5*time.Second),
		OutboxPoll:     l.duration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		IdempotencyTTL: l.duration("IDEMPOTENCY_TTL", time.Hour),
		RateLimit:      l.int("RATE_LIMIT", 120),
		RatePeriod:     l.duration("RATE_PERIOD", time.Minute),
	}
	if l.err != nil {
		return nil, l.err
	}
	if cfg.MaxSeats <= 0 || cfg.MaxCartItems <= 0 {
		return nil, errors.New("MAX_SEATS_PER_BOOKING and MAX_CART_ITEMS must be positive")
	}
	return cfg, nil
}

func (c *Config) Policy() domain.Policy {
	return domain.Policy{
		PendingTTL:        c.PendingTTL,
		PaymentTTL:        c.PaymentTTL,
		PickupWindow:      c.PickupWindow,
		BookingCutoff:     c.BookingCutoff,
		MaxSeats:          c.MaxSeats,
		MaxCartItems:      c.MaxCartItems,
		VerificationGrace: c.VerificationGrace,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if l.err == nil {
			l.err = errors.Wrapf(err, "parse %s", key)
		}
		return def
	}
	return d
}

func (l *loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if l.err == nil {
			l.err = errors.Wrapf(err, "parse %s", key)
		}
		return def
	}
	return n
}

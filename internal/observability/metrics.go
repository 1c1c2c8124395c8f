package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinema_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinema_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	SeatToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_seat_toggles_total",
			Help: "Seat toggle attempts by outcome",
		},
		[]string{"outcome"},
	)

	CartAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_cart_adjustments_total",
			Help: "Cart quantity changes by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	Cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_cancellations_total",
			Help: "Canceled reservations by origin and prior status",
		},
		[]string{"origin", "from"},
	)

	BroadcastFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinema_broadcast_failures_total",
			Help: "Realtime notifications that could not be delivered",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinema_sweep_seconds",
			Help:    "Duration of an expiry sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweptReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_swept_total",
			Help: "Rows touched by the expiry sweep",
		},
		[]string{"action"},
	)

	OutboxLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinema_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinema_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinema_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal, DBTxDuration, DBTxRetries,
			SeatToggles, CartAdjustments, Cancellations, BroadcastFailures,
			SweepDuration, SweptReservations,
			OutboxLag, RabbitPublishRetries, RateLimitExceeded,
		)
	})
}

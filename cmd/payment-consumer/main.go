package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/cinema-reservations/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-reservations/internal/adapters/mongo"
	"github.com/robertarktes/cinema-reservations/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/cinema-reservations/internal/adapters/redis"
	"github.com/robertarktes/cinema-reservations/internal/config"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"github.com/robertarktes/cinema-reservations/internal/payments"
	"github.com/robertarktes/cinema-reservations/internal/reservation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "cinema-payment-consumer")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	svc := reservation.NewService(
		crdb.NewRepository(pool),
		redisadapter.NewBroadcaster(redisClient),
		mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger),
		cfg.Policy(),
		logger,
	)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, rabbit.PaymentsQueue, "payments.events", "payment.captured")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", rabbit.PaymentsQueue, err)
	}

	logger.WithField("queue", rabbit.PaymentsQueue).Info("payment consumer started")
	if err := payments.NewListener(svc, logger).Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("payment consumer stopped")
	}
	logger.Info("Shutdown payment consumer")
}

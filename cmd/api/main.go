package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/cinema-reservations/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/cinema-reservations/internal/adapters/redis"
	"github.com/robertarktes/cinema-reservations/internal/config"
	httphandler "github.com/robertarktes/cinema-reservations/internal/http"
	"github.com/robertarktes/cinema-reservations/internal/idempotency"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"github.com/robertarktes/cinema-reservations/internal/rateLimit"
	"github.com/robertarktes/cinema-reservations/internal/reservation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "cinema-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics()

	auth, err := httphandler.NewAuthenticator(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to load jwt key: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)
	if err := audit.EnsureIndexes(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to create audit indexes")
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	broadcaster := redisadapter.NewBroadcaster(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache, cfg.RateLimit, cfg.RatePeriod)

	svc := reservation.NewService(crdbRepo, broadcaster, audit, cfg.Policy(), logger)
	sweeper := reservation.NewSweeper(svc, redisCache, logger, cfg.SweepMinGap)

	handlers := httphandler.NewHandlers(svc, broadcaster, map[string]httphandler.Check{
		"crdb":  crdbRepo.Ping,
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
	})

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterDeps{
		Auth:    auth,
		Limiter: rl,
		Idemp:   idemp,
		Sweeper: sweeper,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

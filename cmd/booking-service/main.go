package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	bookinghttp "github.com/dmehra2102/test-booking-service/internal/booking/infrastructure/http"
	bookingkafka "github.com/dmehra2102/test-booking-service/internal/booking/infrastructure/kafka"
	"github.com/dmehra2102/test-booking-service/internal/booking/infrastructure/payment"
	bookingpg "github.com/dmehra2102/test-booking-service/internal/booking/infrastructure/postgres"
	"github.com/dmehra2102/test-booking-service/internal/booking/infrastructure/scheduling"
	"github.com/dmehra2102/test-booking-service/internal/booking/infrastructure/telemetry"
	"github.com/dmehra2102/test-booking-service/internal/config"
	"github.com/dmehra2102/test-booking-service/pkg/idempotency"
	"github.com/dmehra2102/test-booking-service/pkg/logging"
	"github.com/dmehra2102/test-booking-service/pkg/outbox"
	"github.com/dmehra2102/test-booking-service/pkg/retry"
	"github.com/dmehra2102/test-booking-service/pkg/shutdown"
	"github.com/dmehra2102/test-booking-service/pkg/tracing"
)

const serviceName = "booking-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown.Drain(5*time.Second, tp.Shutdown) }()

	mp, err := tracing.InitMetrics(ctx, serviceName, cfg.OTLPEndpoint, 30*time.Second)
	if err != nil {
		log.Error("otel metrics init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown.Drain(5*time.Second, mp.Shutdown) }()

	// Postgres
	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := bookingpg.Migrate(ctx, log, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	dedup := idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	outcomes := idempotency.NewStore(rdb, cfg.PaymentOutcomeTTL)

	// Kafka producer and outbox relay
	brokers := []string{cfg.KafkaAddr}
	writer := bookingkafka.NewWriter(brokers)
	defer writer.Close()

	outboxStore := bookingpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.EventsTopic)
	relay := outbox.NewRelay(log, outboxStore, dispatch, serviceName+"-relay")

	// Providers
	sched := scheduling.New(log, scheduling.Config{
		BaseURL:         cfg.SchedulingBaseURL,
		Timeout:         cfg.SchedulingTimeout,
		LockTimeSeconds: cfg.ReservationLockSeconds,
		Policies:        cfg.Retry,
	}, scheduling.StaticToken(cfg.SchedulingToken))
	payments := payment.NewIdempotent(log,
		payment.NewClient(log, cfg.PaymentBaseURL, cfg.PaymentTimeout, cfg.Retry.For(retry.Commit)),
		outcomes,
	)

	recorder, err := telemetry.NewRecorder(log, mp)
	if err != nil {
		log.Error("telemetry init failed", "err", err)
		os.Exit(1)
	}

	records := bookingpg.NewRecordStore(log, pool, cfg.RefundNoticeDays)
	orchestrator := application.NewOrchestrator(log, sched, payments, records,
		application.WithCompensationQueue(bookingpg.NewReleaseQueue(log, pool)),
		application.WithTelemetry(recorder),
		application.WithStepTimeout(cfg.StepTimeout),
	)

	// Queued releases
	consumer := bookingkafka.NewReleaseConsumer(log,
		bookingkafka.NewReader(brokers, cfg.EventsTopic, cfg.ConsumerGroup),
		application.NewReleaseWorker(log, sched),
		dedup,
		bookingkafka.DefaultReleasePolicy,
	)

	handler := bookinghttp.NewHandler(log, orchestrator, pool.Ping)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(handler.Routes(), serviceName),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("release consumer stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	if err := shutdown.Drain(10*time.Second, srv.Shutdown); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("booking-service shutdown complete")
}

// Package integration starts the containers the integration tests share.
package integration

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Env struct {
	PG       *postgres.PostgresContainer
	Kafka    *kafka.KafkaContainer
	Redis    *tcredis.RedisContainer
	PGURL    string
	KAddr    []string
	RedisURL string
}

type Option func(*options)

type options struct {
	kafka bool
	redis bool
}

func WithKafka() Option { return func(o *options) { o.kafka = true } }
func WithRedis() Option { return func(o *options) { o.redis = true } }

// Setup always starts postgres; kafka and redis only when asked for.
func Setup(ctx context.Context, opts ...Option) (*Env, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	env := &Env{}
	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bookings"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return nil, err
	}
	env.PG = pgC
	if env.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable"); err != nil {
		env.Teardown(context.Background())
		return nil, err
	}

	if o.kafka {
		kafkaC, err := kafka.Run(ctx,
			"confluentinc/confluent-local:7.5.0",
			kafka.WithClusterID("booking-test"),
		)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.Kafka = kafkaC
		if env.KAddr, err = kafkaC.Brokers(ctx); err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}

	if o.redis {
		redisC, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.Redis = redisC
		if env.RedisURL, err = redisC.ConnectionString(ctx); err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Redis != nil {
		_ = e.Redis.Terminate(ctx)
	}
	if e.Kafka != nil {
		_ = e.Kafka.Terminate(ctx)
	}
	if e.PG != nil {
		_ = e.PG.Terminate(ctx)
	}
}

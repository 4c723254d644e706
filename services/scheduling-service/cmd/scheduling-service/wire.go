package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rdvmed/clinicsched/libs/config"
	"github.com/rdvmed/clinicsched/libs/db"
	"github.com/rdvmed/clinicsched/libs/grpcx"
	"github.com/rdvmed/clinicsched/libs/httpx"
	"github.com/rdvmed/clinicsched/libs/kafkax"
	"github.com/rdvmed/clinicsched/libs/runtime"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/directory"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/storage"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/storage/memstore"
	"github.com/rdvmed/clinicsched/services/scheduling-service/internal/store"
	"github.com/redis/go-redis/v9"
)

type dependencies struct {
	driver      string
	store       store.Store
	directory   directory.Checker
	publisher   *outbox.Publisher
	readyChecks []runtime.ReadyCheck
	closers     []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// wire builds the store, directory and outbox publisher selected by STORE_DRIVER and
// DIRECTORY_GRPC_ADDR.
func wire(ctx context.Context, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{driver: config.String("STORE_DRIVER", "postgres")}

	var pool *db.Pool
	switch deps.driver {
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			return nil, err
		}
		isolation, err := storage.ParseIsolation(config.String("BOOKING_ISOLATION", "read_committed"))
		if err != nil {
			return nil, err
		}
		pool, err = db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		deps.closers = append(deps.closers, pool.Close)
		deps.store = storage.New(pool, storage.Options{Isolation: isolation})
		deps.readyChecks = append(deps.readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		brokers := config.List("KAFKA_BROKERS")
		if len(brokers) > 0 {
			pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
			if err != nil {
				return nil, err
			}
			deps.publisher = outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
				Brokers:   brokers,
				PollEvery: pollEvery,
				BatchSize: 50,
			})
			deps.readyChecks = append(deps.readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		} else {
			logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
		}
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		deps.store = memstore.New()
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres or memory (got %q)", deps.driver)
	}

	addr := config.String("DIRECTORY_GRPC_ADDR", "")
	switch {
	case addr != "":
		timeout, err := config.Duration("DIRECTORY_TIMEOUT", 3*time.Second)
		if err != nil {
			return nil, err
		}
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{CallTimeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("directory client: %w", err)
		}
		deps.closers = append(deps.closers, func() { _ = conn.Close() })
		deps.directory = directory.NewGRPCChecker(conn)
	case pool != nil:
		deps.directory = directory.NewPGChecker(pool)
	default:
		logger.Warn("no directory configured; every patient and provider id is accepted")
		deps.directory = directory.Permissive{}
	}
	return deps, nil
}

// rateLimiter returns nil when RATE_LIMIT_PER_MINUTE is 0. With REDIS_URL the window is shared
// by every replica; otherwise each process counts on its own.
func (d *dependencies) rateLimiter(ctx context.Context, logger *slog.Logger) (httpx.Limiter, error) {
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	redisURL := config.String("REDIS_URL", "")
	if redisURL == "" {
		return httpx.NewMemoryRateLimiter(limit, time.Minute), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	d.closers = append(d.closers, func() { _ = rdb.Close() })
	d.readyChecks = append(d.readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	if err := httpx.RedisReadyCheck(rdb)(ctx); err != nil {
		logger.Warn("redis not reachable at startup; rate limiting fails open", "err", err)
	}
	return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "clinicsched:ratelimit"), nil
}

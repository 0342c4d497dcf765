package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/discussion-platform/internal/platform/auth"
	"github.com/example/discussion-platform/internal/platform/config"
	"github.com/example/discussion-platform/internal/platform/db"
	"github.com/example/discussion-platform/internal/platform/httpserver"
	"github.com/example/discussion-platform/internal/platform/logging"
	"github.com/example/discussion-platform/internal/platform/natsconn"
	"github.com/example/discussion-platform/internal/platform/run"
	"github.com/example/discussion-platform/services/threads/internal/events"
	"github.com/example/discussion-platform/services/threads/internal/grpcapi"
	"github.com/example/discussion-platform/services/threads/internal/handlers"
	"github.com/example/discussion-platform/services/threads/internal/idempotency"
	"github.com/example/discussion-platform/services/threads/internal/lock"
	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/store"
	"github.com/example/discussion-platform/services/threads/internal/thread"
	"github.com/example/discussion-platform/services/threads/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	rdb := openRedis(log, cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	threads, pool, closeStore := openStore(ctx, log, cfg, rdb)
	defer closeStore()
	if rdb != nil {
		threads = store.NewCachedThreadStore(threads, rdb, cfg.Redis.CacheTTL, log)
		log.Info("thread cache enabled", zap.Duration("ttl", cfg.Redis.CacheTTL))
	}

	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	if cfg.NATS.Enabled {
		nc, err = natsconn.Connect(natsconn.Options{URL: cfg.NATS.URL, Name: cfg.ServiceName, Logger: log})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		defer nc.Close()
		if js, err = nc.JetStream(); err != nil {
			log.Error("jetstream", zap.Error(err))
			run.Exit(1)
		}
		if err := events.EnsureStream(ctx, js); err != nil {
			log.Error("ensure stream", zap.Error(err))
			run.Exit(1)
		}
	} else {
		log.Warn("NATS disabled, domain events are not published")
	}

	var publisher *events.Publisher
	if js != nil {
		publisher = events.New(js, log)
	}
	svc := service.New(threads, publisher, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return svc.Ping(c)
		},
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      log,
	})
	handlers.Mount(r, svc, auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)})
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.UnaryLogger(log.Named("grpc"))))
	grpcapi.RegisterThreadServiceServer(grpcSrv, grpcapi.NewThreadService(svc, log))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			dedup, err := idempotency.NewStore(rdb, pool, 24*time.Hour, cfg.IsProduction())
			if err != nil {
				return err
			}
			if err := idempotency.Migrate(ctx, dedup); err != nil {
				return err
			}
			consumer, err := worker.NewConsumer(log.Named("worker"), nc, svc, dedup)
			if err != nil {
				return err
			}
			go func() {
				if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("command consumer stopped", zap.Error(err))
				}
			}()
		}
		return srv.Start(log)
	})

	healthSrv.Shutdown()
	runner.Graceful(run.StopGRPC(grpcSrv), srv.Shutdown)
	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

func openRedis(log *zap.Logger, cfg config.AppConfig) *redis.Client {
	if cfg.Redis.URL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Error("invalid REDIS_URL", zap.Error(err))
		run.Exit(1)
	}
	return redis.NewClient(opt)
}

// openStore builds the configured thread store. The pool is returned for
// command idempotency and is nil unless the driver is postgres.
func openStore(ctx context.Context, log *zap.Logger, cfg config.AppConfig, rdb *redis.Client) (thread.Store, *pgxpool.Pool, func()) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := db.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Error("postgres connect", zap.Error(err))
			run.Exit(1)
		}
		s := store.NewPostgresThreadStore(pool, cfg.Lock.Wait)
		if err := s.Migrate(ctx); err != nil {
			log.Error("postgres migrate", zap.Error(err))
			run.Exit(1)
		}
		log.Info("using postgres thread store")
		return s, pool, pool.Close

	case config.StoreSQLite:
		sdb, err := db.OpenSQLite(ctx, cfg.Store.SQLitePath, cfg.Lock.Wait)
		if err != nil {
			log.Error("sqlite open", zap.Error(err))
			run.Exit(1)
		}
		s := store.NewSQLiteThreadStore(sdb, cfg.Lock.Wait)
		if rdb != nil {
			s.WithLocker(lock.NewRedis(rdb, cfg.Lock.TTL, cfg.Lock.Wait, log.Named("lock")))
		}
		if err := s.Migrate(ctx); err != nil {
			log.Error("sqlite migrate", zap.Error(err))
			run.Exit(1)
		}
		log.Info("using sqlite thread store", zap.String("path", cfg.Store.SQLitePath))
		return s, nil, func() { _ = sdb.Close() }

	default:
		log.Warn("using in-memory thread store (development only)")
		return store.NewInMemoryThreadStore(cfg.Lock.Wait), nil, func() {}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"room_chat/internal/blob"
	"room_chat/internal/config"
	"room_chat/internal/delivery"
	"room_chat/internal/handler"
	"room_chat/internal/middleware"
	"room_chat/internal/repository"
	"room_chat/internal/repository/memory"
	"room_chat/internal/service"
	"room_chat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)
	if cfg.Environment == "production" {
		appLogger = logger.NewProduction(cfg.Log.Level)
	}
	defer func() { _ = appLogger.Sync() }()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Server stopped", "error", err)
	}
	appLogger.Info("Server exited")
}

func run(cfg *config.Config, appLogger logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		appLogger.Info("Redis connection established", "addr", cfg.Redis.Addr)
	}

	repos, closeDB, err := openRepositories(ctx, cfg, rdb, appLogger)
	if err != nil {
		return err
	}
	defer closeDB()

	blobs, closeBlobs, err := openBlobStore(ctx, cfg.Storage, appLogger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	g, ctx := errgroup.WithContext(ctx)

	var hub *delivery.Hub
	var publisher delivery.Publisher = delivery.NopPublisher{}
	if cfg.Delivery.Strategy == config.DeliveryStrategyPush {
		hub = delivery.NewHub(appLogger)
		publisher = hub
		if rdb != nil {
			bridge := delivery.NewRedisBridge(rdb, hub, appLogger)
			publisher = bridge
			g.Go(func() error { return bridge.Run(ctx) })
		}
	}
	appLogger.Info("Delivery strategy selected", "strategy", cfg.Delivery.Strategy, "fan_out_via_redis", rdb != nil && hub != nil)

	services := service.NewServices(repos, blobs, publisher, cfg, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := handler.NewHandlers(services, hub, publisher, cfg, appLogger)
	router := handler.SetupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		appLogger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		appLogger.Info("Shutting down server...")

		if hub != nil {
			hub.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openRepositories picks the store from config. Rate limiting and presence
// live in Redis when it is configured and in process otherwise.
func openRepositories(ctx context.Context, cfg *config.Config, rdb *redis.Client, appLogger logger.Logger) (*repository.Repositories, func(), error) {
	var repos *repository.Repositories
	closeDB := func() {}

	switch cfg.Database.Driver {
	case config.StorageDriverMemory:
		repos = memory.NewStore().Repositories()
		appLogger.Warn("Using in-memory storage; data is lost on restart")
		if rdb != nil {
			repos.RateLimit = repository.NewRateLimitRepository(rdb, appLogger)
			repos.Presence = repository.NewPresenceRepository(rdb, appLogger)
		}
	default:
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid database DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
		poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
		poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		appLogger.Info("Database connection established")

		if err := repository.Migrate(ctx, pool, appLogger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		repos = repository.NewRepositories(pool, rdb, appLogger)
		closeDB = pool.Close
	}

	if repos.RateLimit == nil {
		repos.RateLimit = memory.NewRateLimitRepository()
	}
	if repos.Presence == nil {
		repos.Presence = memory.NewPresenceRepository()
	}
	return repos, closeDB, nil
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig, appLogger logger.Logger) (blob.Store, func(), error) {
	if cfg.Driver == config.BlobDriverNATS {
		store, err := blob.NewJetStreamStore(ctx, cfg.NATSURL, cfg.Bucket, appLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open object store: %w", err)
		}
		return store, store.Close, nil
	}

	store, err := blob.NewLocalStore(cfg.UploadDir, appLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload dir: %w", err)
	}
	return store, func() {}, nil
}

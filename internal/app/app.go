package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/foodcart/internal/config"
	handler "github.com/utafrali/foodcart/internal/handler/http"
	"github.com/utafrali/foodcart/internal/notify"
	"github.com/utafrali/foodcart/internal/remote"
	"github.com/utafrali/foodcart/internal/session"
	"github.com/utafrali/foodcart/internal/store"
	"github.com/utafrali/foodcart/pkg/database"
	"github.com/utafrali/foodcart/pkg/health"
	"github.com/utafrali/foodcart/pkg/httpclient"
	pkgkafka "github.com/utafrali/foodcart/pkg/kafka"
	"github.com/utafrali/foodcart/pkg/middleware"
	"github.com/utafrali/foodcart/pkg/tracing"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	store          *store.Store
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// Redis and Kafka are optional and only connected when configured.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Tracing.
	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = handler.ServiceName
	tracingCfg.Environment = cfg.Environment
	shutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracerShutdown = shutdown

	// Food API client.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.APITimeout
	clientCfg.MaxRetries = cfg.APIMaxRetries
	var doer httpclient.Doer = httpclient.New(clientCfg)
	if cfg.BreakerEnabled {
		doer = httpclient.NewCircuitBreakerClient(doer, httpclient.DefaultCircuitBreakerConfig(remote.ServiceName), logger)
	}
	api, err := remote.NewClient(cfg.APIURL, doer, logger)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("create food API client: %w", err)
	}

	healthHandler := health.NewHandler()
	healthHandler.Register(remote.ServiceName, api.Ping)

	// Session token source.
	var tokens session.TokenSource = session.Static(cfg.Token)
	if cfg.Token == "" && cfg.RedisAddr != "" {
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		a.rdb = rdb
		tokens = session.NewRedisTokenSource(rdb, cfg.TokenKey)
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Notification sinks.
	feed := notify.NewFeed(cfg.FeedSize)
	sinks := notify.Multi{feed, notify.NewLogNotifier(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		logger.Info("kafka producer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.NotifyTopic),
		)
		sinks = append(sinks, notify.NewKafkaNotifier(a.producer, cfg.NotifyTopic, logger))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
	}

	a.store = store.New(api, store.Options{
		Tokens:             tokens,
		Notifier:           sinks,
		Logger:             logger,
		ReconcileOnFailure: cfg.ReconcileOnFailure,
	})

	// HTTP router.
	router := handler.NewRouter(a.store, feed, healthHandler, logger, handler.RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		RequestTimeout: cfg.APITimeout + 5*time.Second,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.APITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Store returns the cart store served by the app.
func (a *App) Store() *store.Store {
	return a.store
}

// Handler returns the HTTP handler served by the app.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run loads the catalog and the persisted session, then serves HTTP until
// the context is canceled. A failed startup load is logged and the server
// starts anyway with whatever state could be loaded.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Init(ctx); err != nil {
		a.logger.Warn("store initialization incomplete", slog.String("error", err.Error()))
	}
	snap := a.store.Snapshot()
	a.logger.Info("store initialized",
		slog.Int("products", len(snap.Catalog)),
		slog.Int("cart_items", snap.Cart.ItemCount()),
		slog.Bool("signed_in", snap.Token != ""),
	)

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeAll()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.closeAll()
	a.logger.Info("application shutdown complete")
	return nil
}

// closeAll releases the Kafka producer, the Redis client and the tracer.
func (a *App) closeAll() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
		a.producer = nil
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
		a.tracerShutdown = nil
	}
}

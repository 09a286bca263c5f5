package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cache"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cartstore"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/checkout"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/config"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/consumer"
	h "github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/http"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/lineitem"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/logger"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/order"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/outbox"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/payment"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/repository"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(logger.Options{Service: "storefront", Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zl.Fatal("redis connection failed", zap.Error(err))
	}
	zl.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	refs, closeRefs := cartRefs(ctx, cfg, zl)
	defer closeRefs()

	var ledger outbox.RepoInterface = outbox.NewMemoryRepository()
	var pg *outbox.Repository
	if cfg.EventsEnabled {
		creds := &outbox.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		pg, err = outbox.NewRepository(creds)
		if err != nil {
			zl.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.RunMigrations(creds); err != nil {
			zl.Fatal("failed to run migrations", zap.Error(err))
		}
		zl.Info("database migrations completed")
		ledger = pg
	}

	backend := commerce.NewClient(commerce.Options{
		BaseURL:          cfg.CommerceBackendURL,
		PublishableKey:   cfg.CommercePublishableKey,
		Timeout:          cfg.BackendTimeout,
		CustomerEmail:    cfg.CustomerEmail,
		CustomerPassword: cfg.CustomerPassword,
	}, zl)

	policy := retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}
	store := cartstore.New(backend, cache.NewRedisCache(redisClient), refs, zl)
	items := lineitem.NewMutator(store, policy, zl)
	payments := payment.NewManager(store, policy, zl)
	flows := checkout.NewController()
	orders := order.NewOrchestrator(store, ledger, flows, zl, items, payments)

	router := h.NewRouter(
		h.NewCartHandler(store, items, cfg.BackendTimeout),
		h.NewCheckoutHandler(store, flows, payments, orders, cfg.PaymentPublishableKey, cfg.BackendTimeout),
		h.RouterOptions{
			Logger:             zl,
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
			SecureCookies:      cfg.AppEnv != "dev",
		},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if pg != nil {
		poller := outbox.NewPoller(pg, zl, cfg.OrdersTopic, cfg.KafkaBrokers...)
		defer poller.Close()
		g.Go(func() error {
			poller.Run(gctx)
			return nil
		})

		orderConsumer := consumer.NewConsumer(store, zl, cfg.OrdersTopic, cfg.KafkaGroupID, cfg.KafkaBrokers, items, payments, flows)
		defer orderConsumer.Close()
		g.Go(func() error {
			orderConsumer.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down storefront")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zl.Error("storefront stopped with error", zap.Error(err))
		return
	}
	zl.Info("storefront stopped")
}

func cartRefs(ctx context.Context, cfg *config.Config, zl *zap.Logger) (repository.CartRefRepository, func()) {
	if cfg.RefStore == "memory" {
		zl.Warn("cart references kept in memory; they are lost on restart")
		return repository.NewMemoryRepository(), func() {}
	}

	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDBName,
		MaxPoolSize:    cfg.MongoMaxPoolSize,
		MinPoolSize:    cfg.MongoMinPoolSize,
		ConnectTimeout: cfg.MongoConnectTimeout,
	})
	if err != nil {
		zl.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		zl.Fatal("failed to create cart reference indexes", zap.Error(err))
	}
	zl.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	return repo, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoDB.Client().Disconnect(disconnectCtx); err != nil {
			zl.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
}

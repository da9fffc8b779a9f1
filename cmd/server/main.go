package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"groupbuy/internal/api"
	"groupbuy/internal/api/middleware"
	"groupbuy/internal/config"
	"groupbuy/internal/events"
	"groupbuy/internal/identity"
	"groupbuy/internal/repository"
	"groupbuy/internal/service"
	"groupbuy/internal/websocket"
	"groupbuy/pkg/ratelimit"
	"groupbuy/pkg/utils"
)

// pruneInterval очистка простаивающих вёдер rate limiter'а в памяти процесса
const pruneInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	db, err := repository.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	if cfg.Database.MigrateOnStart {
		version, err := repository.Migrate(ctx, db)
		if err != nil {
			return err
		}
		log.Info("schema migrated", zap.String("version", version))
	}

	store := repository.NewStore(db)

	// Admission control: Redis делит вёдра между инстансами
	var admission service.Admission
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		var backend ratelimit.Backend
		if cfg.Redis.Enabled() {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			backend = ratelimit.NewRedisBackend(rdb, "groupbuy:ratelimit:")
			log.Info("rate limiter uses redis", zap.String("addr", cfg.Redis.Addr))
		}
		limiter = ratelimit.NewLimiter(backend, cfg.RateLimit.Limits)
		admission = limiter
	}

	// Fan-out событий: websocket всегда, Kafka по конфигурации
	hub := websocket.NewHub(cfg.Server.AllowedOrigins, log)
	publishers := []service.EventPublisher{hub}
	if cfg.Kafka.Enabled() {
		kafkaPub, err := events.NewKafkaPublisher(events.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		if err != nil {
			return err
		}
		defer func() {
			if err := kafkaPub.Close(); err != nil {
				log.Warn("failed to close kafka writer", utils.Err(err))
			}
		}()
		publishers = append(publishers, kafkaPub)
		log.Info("publishing events to kafka", zap.String("topic", cfg.Kafka.Topic))
	}

	engine, err := service.NewEngine(service.EngineDeps{
		Store:     service.NewSQLStore(store),
		Identity:  identity.Resolver{},
		Publisher: service.NewMultiPublisher(publishers...),
		Admission: admission,
		Retry:     cfg.Engine.RetryPolicy(),
		Logger:    log,
	})
	if err != nil {
		return err
	}

	authCfg := middleware.AuthConfig{
		Authenticator: identity.NewAuthenticator(store.Actors, cfg.Security.BcryptCost, log),
		Required:      cfg.Security.AuthEnabled,
		Logger:        log,
	}
	if limiter != nil {
		authCfg.Limiter = limiter
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		Orders:         engine,
		Pools:          engine,
		Stats:          engine,
		Stream:         http.HandlerFunc(hub.ServeWS),
		Ping:           store.Ping,
		Auth:           authCfg,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return service.NewExpirySweeper(engine, cfg.Engine.ExpirySweepInterval).Run(gctx) })
	if limiter != nil {
		g.Go(func() error { return limiter.RunPruner(gctx, pruneInterval) })
	}

	g.Go(func() error {
		log.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}

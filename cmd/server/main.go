package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventease/booking-service/internal/config"
	"github.com/eventease/booking-service/internal/database"
	"github.com/eventease/booking-service/internal/handler"
	"github.com/eventease/booking-service/internal/lib/logger/handlers/slogpretty"
	"github.com/eventease/booking-service/internal/lib/logger/sl"
	"github.com/eventease/booking-service/internal/middleware"
	"github.com/eventease/booking-service/internal/queue"
	"github.com/eventease/booking-service/internal/repository"
	"github.com/eventease/booking-service/internal/repository/memory"
	"github.com/eventease/booking-service/internal/router"
	"github.com/eventease/booking-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

// stores groups the persistence collaborators of one storage driver.
type stores struct {
	db       *sql.DB // nil for the memory driver
	events   service.EventStore
	bookings service.BookingStore
	users    handler.UserStore
	tokens   handler.TokenStore
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)
	log.Info("starting booking service",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.StorageDriver),
		slog.String("timezone", cfg.Location.String()),
		slog.String("cancel_policy", cfg.CancelPolicy),
	)
	log.Debug("debug messages are enabled")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, log, cfg)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	if err := ensureAdmin(ctx, log, st.users, cfg.Admin, cfg.Auth.BcryptCost); err != nil {
		log.Error("failed to provision admin", sl.Err(err))
		os.Exit(1)
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, caching and rate limiting disabled", sl.Err(err))
	}

	auditor := setupAuditor(ctx, log, cfg.Queue)

	opts := []service.AllocatorOption{
		service.WithAuditor(auditor),
		service.WithUsers(st.users),
		service.WithPolicy(cfg.Policy),
		service.WithLocation(cfg.Location),
	}
	var invalidator service.CacheInvalidator
	if rdb != nil {
		invalidator = middleware.NewCacheInvalidator(rdb, cfg.Cache.Prefix)
		opts = append(opts, service.WithCache(invalidator))
	}
	allocator := service.NewAllocator(log, st.bookings, opts...)
	catalog := service.NewCatalog(log, st.events, st.bookings, invalidator, cfg.Location, time.Now)

	var pinger handler.Pinger
	if st.db != nil {
		pinger = st.db
	}
	e := router.New(log, cfg.CORSOrigins, router.Deps{
		JWTSecret: cfg.Auth.JWTSecret,
		Health:    handler.Health(pinger),
		Auth:      handler.NewAuthHandler(log, cfg.Auth, st.users, st.tokens),
		Bookings:  handler.NewBookingHandler(log, allocator),
		Events:    handler.NewEventHandler(log, catalog, allocator),
		Cache:     middleware.NewRedisCache(log, cfg.Cache, rdb),
		RateLimit: middleware.NewTokenBucket(log, cfg.RateLimit, rdb),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("application stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server", sl.Err(err))
	}

	allocator.Wait()

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error("failed to close redis client", sl.Err(err))
		}
	}
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			log.Error("failed to close mysql connection", sl.Err(err))
		}
	}
	log.Info("application stopped")
}

func openStores(ctx context.Context, log *slog.Logger, cfg config.Config) (stores, error) {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		mem := memory.New()
		return stores{events: mem.Events(), bookings: mem.Bookings(), users: mem.Users(), tokens: mem.Tokens()}, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return stores{}, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, err
		}
		log.Info("database schema up to date")
	}
	return stores{
		db:       db,
		events:   repository.NewEventRepo(db),
		bookings: repository.NewBookingRepo(db, cfg.Database.TxRetries),
		users:    repository.NewUserRepo(db),
		tokens:   repository.NewTokenRepo(db),
	}, nil
}

// setupAuditor publishes booking notifications to RabbitMQ and starts the
// consumer that appends them to the audit log.  When the queue is disabled
// notifications go to the application log.
func setupAuditor(ctx context.Context, log *slog.Logger, cfg config.QueueConfig) service.Auditor {
	if !cfg.Enabled {
		return queue.NewLogAuditor(log)
	}
	consumer := queue.NewConsumer(log, cfg.URL, cfg.LogDir)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("audit consumer stopped", sl.Err(err))
		}
	}()
	return queue.NewPublisher(cfg.URL)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = setupPrettySlog()
	case config.EnvDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}

package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/middleware/csrf"
	"github.com/goliatone/go-accounts/provision"
	"github.com/goliatone/go-accounts/repository"
)

type App struct {
	config  *config.Config
	logger  *slog.Logger
	bunDB   *bun.DB
	redis   *redis.Client
	store   accounts.Store
	codes   accounts.RecoveryCodes
	service *accounts.Service
	srv     router.Server[*fiber.App]
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", richErrorAttrs(err)...)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	app := &App{
		config: cfg,
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})),
	}

	ctx := context.Background()

	if err := WithRedis(ctx, app); err != nil {
		app.fatal("redis setup failed", err)
	}

	if err := WithPersistence(ctx, app); err != nil {
		app.fatal("persistence setup failed", err)
	}

	if err := WithService(ctx, app); err != nil {
		app.fatal("service setup failed", err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		app.fatal("http setup failed", err)
	}

	go func() {
		app.logger.Info("listening", "address", cfg.Address)
		if err := app.srv.Serve(cfg.Address); err != nil {
			app.fatal("http server stopped", err)
		}
	}()

	sig := WaitExitSignal()
	app.logger.Info("shutting down", "signal", sig.String())
	app.Close()
}

func (a *App) usesRedis() bool {
	return a.config.Store == config.StoreRedis || a.config.CSRFStorage == config.StoreRedis
}

func WithRedis(ctx context.Context, app *App) error {
	if !app.usesRedis() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.config.RedisAddr,
		Password: app.config.RedisPassword,
		DB:       app.config.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to reach redis")
	}

	app.redis = client
	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.config

	switch cfg.Store {
	case config.StoreMemory:
		app.store = repository.NewMemoryStore()
	case config.StoreRedis:
		app.store = repository.NewRedisStore(app.redis, cfg.RedisPrefix)
	default:
		db, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open database")
		}
		db.SetMaxOpenConns(1)

		app.bunDB = bun.NewDB(db, sqlitedialect.New())
		if err := repository.Migrate(ctx, app.bunDB); err != nil {
			return err
		}
		app.store = repository.NewBunStore(app.bunDB)
	}

	if app.redis != nil && cfg.Store == config.StoreRedis {
		app.codes = repository.NewRedisRecoveryCodes(
			app.redis,
			cfg.RedisPrefix,
			cfg.RecoveryCodeTTL,
			cfg.RecoveryCodeLength,
			cfg.RecoveryCodeAttempts,
		)
	} else {
		app.codes = accounts.NewMemoryRecoveryCodes(
			accounts.WithRecoveryTTL(cfg.RecoveryCodeTTL),
			accounts.WithRecoveryCodeLength(cfg.RecoveryCodeLength),
			accounts.WithRecoveryMaxAttempts(cfg.RecoveryCodeAttempts),
		)
	}

	app.logger.Info("persistence ready", "store", cfg.Store)
	return nil
}

func WithService(ctx context.Context, app *App) error {
	cfg := app.config
	dirs := provision.NewDirectories(cfg.DataRoot, cfg.SeedDir, app.logger.With("component", "provision"))

	app.service = accounts.NewService(app.store).
		WithLogger(app.logger.With("component", "accounts")).
		WithRecoveryCodes(app.codes).
		WithProvisionHook(dirs).
		WithAvatarResolver(dirs.AvatarResolver(cfg.AvatarFile)).
		WithActivitySink(app.activitySink())

	account, err := app.service.EnsureDefaultAccount(ctx, accounts.CreateAccountMessage{
		Handle:   cfg.DefaultHandle,
		Name:     cfg.DefaultName,
		Password: cfg.DefaultPassword,
	})
	if err != nil {
		return err
	}

	if account != nil {
		app.logger.Info("default admin created", "handle", account.Handle, "password", account.HasPassword())
	}

	return nil
}

// activitySink logs every activity entry and, with redis available,
// appends it to the activity stream too.
func (a *App) activitySink() accounts.ActivitySink {
	logged := activitymap.Forward(func(_ context.Context, entry activitymap.Entry) error {
		if entry.Outcome == activitymap.OutcomeFailure {
			a.logger.Warn("activity", entry.Attrs()...)
			return nil
		}
		a.logger.Info("activity", entry.Attrs()...)
		return nil
	})

	if a.redis == nil {
		return logged
	}

	stream := repository.NewRedisActivityStream(a.redis, a.config.RedisPrefix, 0)

	return accounts.ActivitySinkFunc(func(ctx context.Context, event accounts.ActivityEvent) error {
		_ = logged.Record(ctx, event)
		return stream.Record(ctx, event)
	})
}

func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.config

	var storage csrf.Storage = csrf.NewMemoryStorage()
	if cfg.CSRFStorage == config.StoreRedis {
		storage = csrf.NewRedisStorage(app.redis, cfg.RedisPrefix)
	}

	app.srv = accounts.NewHTTPServer(accounts.ServerOptions{
		Service:     app.service,
		Config:      cfg,
		Logger:      app.logger.With("component", "http"),
		CSRFStorage: storage,
		CSRF: &csrf.Config{
			Expiration: cfg.CSRFExpiration,
		},
	})

	return nil
}

func (a *App) Close() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Error("http shutdown error", richErrorAttrs(err)...)
		}
	}

	if a.bunDB != nil {
		_ = a.bunDB.Close()
	}

	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *App) fatal(msg string, err error) {
	a.logger.Error(msg, richErrorAttrs(err)...)
	a.Close()
	os.Exit(1)
}

func richErrorAttrs(err error) []any {
	args := []any{"error", err.Error()}
	for _, attr := range goerrors.ToSlogAttributes(err) {
		args = append(args, attr)
	}
	return args
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}

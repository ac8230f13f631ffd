package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/authhub/authhub/db"
	"github.com/authhub/authhub/internal/audit"
	"github.com/authhub/authhub/internal/authflow"
	"github.com/authhub/authhub/internal/boot"
	"github.com/authhub/authhub/internal/config"
	dbconn "github.com/authhub/authhub/internal/db"
	"github.com/authhub/authhub/internal/handlers"
	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/identity/memdir"
	"github.com/authhub/authhub/internal/identity/pgdir"
	"github.com/authhub/authhub/internal/logger"
	"github.com/authhub/authhub/internal/server"
	"github.com/authhub/authhub/internal/session"
	"github.com/authhub/authhub/internal/verify"
	"github.com/authhub/authhub/internal/version"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Directory.Driver != "postgres" {
		return nil, nil
	}

	pool, err := dbconn.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	migrations, err := fs.Sub(db.MigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	if err := dbconn.Migrate(log, cfg.Postgres, migrations); err != nil {
		pool.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func provideDirectory(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool) (identity.Directory, error) {
	switch cfg.Directory.Driver {
	case "postgres":
		return pgdir.New(log, pool), nil
	case "memory":
		return memdir.New(), nil
	default:
		return nil, fmt.Errorf("unknown directory driver %q", cfg.Directory.Driver)
	}
}

func provideSessionManager(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig) (*session.Manager, error) {
	manager, err := session.NewManager(log, rc.SessionSecret, rc.SessionTTL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			manager.Close()
			return nil
		},
	})
	return manager, nil
}

func provideVerifier(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig) *verify.Service {
	verifier := verify.NewService(log, rc.CodeTTL)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			verifier.Close()
			return nil
		},
	})
	return verifier
}

func provideRecorder(lc fx.Lifecycle, log *slog.Logger, dir identity.Directory) *audit.Recorder {
	recorder := audit.NewRecorder(log, dir)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			recorder.Close()
			return nil
		},
	})
	return recorder
}

func provideAuthFlow(log *slog.Logger, cfg config.Config, dir identity.Directory, sessions *session.Manager, verifier *verify.Service, recorder *audit.Recorder) *authflow.Service {
	return authflow.NewService(log, dir, sessions, verifier, recorder, authflow.CaptchaFlags{
		BackOffice: cfg.Captcha.BackOffice,
		Customer:   cfg.Captcha.Customer,
	})
}

type serverParams struct {
	fx.In

	Logger        *slog.Logger
	RuntimeConfig *boot.RuntimeConfig
	Handlers      []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.ServiceSecret, params.Handlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting AuthHub %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			boot.ProvideRuntimeConfig,
			provideLogger,

			provideDBConn,
			provideDirectory,
			provideSessionManager,
			provideVerifier,
			provideRecorder,
			provideAuthFlow,

			provideServerHandler(handlers.NewAuthRPCHandler),
			provideServerHandler(handlers.NewUserRPCHandler),

			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

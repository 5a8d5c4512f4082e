package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"waterwise/internal/config"
	"waterwise/internal/handlers"
	"waterwise/internal/logger"
	"waterwise/internal/metrics"
	"waterwise/internal/persistence"
	"waterwise/internal/pipeline"
	"waterwise/internal/predictor"
	"waterwise/internal/server"
	"waterwise/internal/session"
	"waterwise/internal/storage"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	metrics.Register()

	db, err := storage.Open(ctx, cfg.Database.URL, storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	store, err := storage.NewStore(ctx, db)
	if err != nil {
		return err
	}
	defer store.Close()

	auth, closeAuth, err := newAuthorizer(cfg.Session, db)
	if err != nil {
		return fmt.Errorf("failed to initialize sessions: %w", err)
	}
	defer closeAuth()

	seq := persistence.New(store, persistence.Config{
		QueueSize:    cfg.Persistence.QueueSize,
		Workers:      cfg.Persistence.Workers,
		WriteTimeout: cfg.Persistence.WriteTimeout,
	})
	seq.Start()

	router := server.NewRouter(server.Routes{
		Submit:  pipeline.New(auth, predictor.New(predictorConfig(cfg.Predictor)), seq, cfg.Server.MaxBodyBytes),
		History: handlers.NewHistoryHandler(auth, store),
	}, server.RateLimit{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", map[string]interface{}{
			"port":              cfg.Server.Port,
			"read_timeout":      cfg.Server.ReadTimeout.String(),
			"write_timeout":     cfg.Server.WriteTimeout.String(),
			"idle_timeout":      cfg.Server.IdleTimeout.String(),
			"session_backend":   cfg.Session.Backend,
			"predictor_command": cfg.Predictor.Command,
			"predictor_timeout": cfg.Predictor.Timeout.String(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
		}
		// In-flight submissions have enqueued by now; drain what they left.
		if err := seq.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("persistence drain failed: %w", err))
		}
		if len(errs) == 0 {
			logger.Info("server shutdown complete", nil)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// newAuthorizer selects the session backend. The returned func releases
// backend resources owned by the authorizer.
func newAuthorizer(cfg config.SessionConfig, db *sql.DB) (session.Authorizer, func(), error) {
	cookie := session.CookieConfig{Name: cfg.CookieName, Secret: cfg.Secret}

	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := session.NewPostgresStore(db, cfg.Table, cookie, cfg.LookupTimeout)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		return session.NewRedisStore(client, cfg.RedisPrefix, cookie, cfg.LookupTimeout), func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", map[string]interface{}{"error": err.Error()})
			}
		}, nil
	case config.BackendJWT:
		return session.NewJWTAuthorizer(cfg.JWTSecret), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func predictorConfig(cfg config.PredictorConfig) predictor.Config {
	return predictor.Config{
		Command:       cfg.Command,
		Args:          cfg.Args,
		Dir:           cfg.Dir,
		Env:           cfg.Env,
		Timeout:       cfg.Timeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}
}

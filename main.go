package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"derivatio-energy/internal/audit"
	"derivatio-energy/internal/auth"
	"derivatio-energy/internal/config"
	consumptionrepo "derivatio-energy/internal/consumption/infrastructure/postgres"
	masterdataapp "derivatio-energy/internal/masterdata/application"
	masterdatarepo "derivatio-energy/internal/masterdata/infrastructure/postgres"
	"derivatio-energy/internal/migration"
	"derivatio-energy/internal/observability/logging"
	"derivatio-energy/internal/observability/metrics"
	simapp "derivatio-energy/internal/simulation/application"
	simrepo "derivatio-energy/internal/simulation/infrastructure/postgres"
	siminterfaces "derivatio-energy/internal/simulation/interfaces"
	"derivatio-energy/internal/simulation/notify"
	tariffapp "derivatio-energy/internal/tariff/application"
	tariff "derivatio-energy/internal/tariff/domain"
	tariffrepo "derivatio-energy/internal/tariff/infrastructure/postgres"
	tariffcache "derivatio-energy/internal/tariff/infrastructure/redis"
	tariffinterfaces "derivatio-energy/internal/tariff/interfaces"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "derivatio",
		Short:         "Grid tariff cost and load shifting simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSimulateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily simulation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL or PG_DSN is required")
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := sql.Open("pgx", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			switch direction {
			case "up":
				version, err := migration.Up(ctx, db, logger)
				if err != nil {
					return fmt.Errorf("migrate failed: %w", err)
				}
				logger.Info("schema up to date", zap.Uint("version", version))
				return nil
			case "down":
				if err := migration.Down(ctx, db, steps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				logger.Info("schema rolled back", zap.Int("steps", steps))
				return nil
			default:
				return fmt.Errorf("unknown direction %q", direction)
			}
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	metrics.Init(db, logger)

	properties := masterdatarepo.NewPropertyRepository(db)
	propertyService, err := masterdataapp.NewPropertyService(properties, masterdatarepo.NewFleetRepository(db))
	if err != nil {
		return err
	}
	access := auth.NewPropertyChecker(properties)
	readings, err := consumptionrepo.NewRepository(db, access)
	if err != nil {
		return err
	}

	var catalog tariff.Repository = tariffrepo.NewRepository(db)
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cached, err := tariffcache.NewCachedCatalog(catalog, client, cfg.Redis.TariffTTL, logger)
		if err != nil {
			return err
		}
		catalog = cached
		logger.Info("tariff cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TariffTTL))
	}
	resolver, err := tariffapp.NewResolver(catalog, logger)
	if err != nil {
		return err
	}

	simService, err := simapp.NewService(simrepo.NewRepository(db), propertyService, readings, resolver, opts,
		simapp.WithLogger(logger),
		simapp.WithAccessChecker(access),
	)
	if err != nil {
		return err
	}
	batch, err := simapp.NewBatchRunner(simService, cfg.SimulationWorkers)
	if err != nil {
		return err
	}

	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
	}
	scheduler := simapp.NewScheduler(batch, cfg.Jobs(), cfg.Scheduler.DailyAt, opts.Location, notifier, logger)
	go scheduler.Start(ctx)

	auditRepo := audit.NewRepository(db)
	auditHandler, err := audit.NewHandler(auditRepo, auth.OrganizationID)
	if err != nil {
		return err
	}
	tariffHandler, err := tariffinterfaces.NewHandler(resolver, opts.Location, tariffinterfaces.WithStore(catalog))
	if err != nil {
		return err
	}
	simHandler, err := siminterfaces.NewHandler(simService, batch, auditRepo, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/tariffs", tariffHandler)
	mux.Handle("/api/v1/tariffs/", tariffHandler)
	mux.Handle("/api/v1/simulations", simHandler)
	mux.Handle("/api/v1/simulations/", simHandler)
	mux.Handle("/api/v1/audit-logs", auditHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy("/healthz", "/metrics"), logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Int("scheduled_jobs", len(cfg.Jobs())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client_ip", audit.ClientIP(r)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

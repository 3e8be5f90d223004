package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecenter/carecenter/internal/config"
	"github.com/carecenter/carecenter/internal/domain/attendance"
	"github.com/carecenter/carecenter/internal/domain/treatment"
	"github.com/carecenter/carecenter/internal/platform/auth"
	"github.com/carecenter/carecenter/internal/platform/cache"
	"github.com/carecenter/carecenter/internal/platform/db"
	"github.com/carecenter/carecenter/internal/platform/events"
	"github.com/carecenter/carecenter/internal/platform/logging"
	"github.com/carecenter/carecenter/internal/platform/middleware"
	"github.com/carecenter/carecenter/internal/platform/websocket"
	"github.com/carecenter/carecenter/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "carecenter-server",
		Short:        "Care center attendance and treatment API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, func()) {
	logger, closer := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	return logger, func() { _ = closer.Close() }
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Timezone: cfg.Timezone,
	})
}

func attendanceOptions(cfg *config.Config) (attendance.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return attendance.Options{}, err
	}
	return attendance.Options{
		Location:        loc,
		AgendaWindow:    cfg.AgendaWindowDays,
		DuplicatePolicy: attendance.DuplicatePolicy(cfg.DuplicateCheckPolicy),
		ClosureLockTTL:  cfg.ClosureLockTTL,
	}, nil
}

// services holds what the router needs; built by runServer and by tests.
type services struct {
	attendance *attendance.Service
	treatment  *treatment.Service
	hub        *websocket.Hub
	dbHealth   db.Pinger
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return err
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: every request is treated as admin; do not use in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Day closure lock
	var locker attendance.DayLocker = cache.NewLocalLocker()
	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer rdb.Close()
		locker = cache.NewLocker(rdb, cfg.RedisPrefix)
		logger.Info().Msg("using redis for day closure locks")
	} else {
		logger.Warn().Msg("REDIS_URL not set; day closure locks are local to this instance")
	}

	// Event fan-out
	hub := websocket.NewHub(logger)
	publishers := events.Fanout{hub}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to amqp broker")
			return err
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to amqp")
	}

	treatmentSvc := treatment.NewService(treatment.NewSessionRepoPG(pool), logger)
	publishers = append(publishers, treatmentSvc.Listener())

	opts, err := attendanceOptions(cfg)
	if err != nil {
		return err
	}
	attendanceSvc := attendance.NewService(
		attendance.NewAttendanceRepoPG(pool),
		attendance.NewClosureRepoPG(pool),
		locker,
		publishers,
		logger,
		opts,
	)

	e := newServer(cfg, logger, services{
		attendance: attendanceSvc,
		treatment:  treatmentSvc,
		hub:        hub,
		dbHealth:   pool,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with middleware and every route.
func newServer(cfg *config.Config, logger zerolog.Logger, svc services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if svc.dbHealth != nil {
		e.GET("/health/db", db.HealthHandler(svc.dbHealth))
	}

	apiV1 := e.Group("/api/v1")
	attendance.NewHandler(svc.attendance).RegisterRoutes(apiV1)
	treatment.NewHandler(svc.treatment).RegisterRoutes(apiV1)

	websocket.NewHandler(svc.hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))
	return e
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	newMigrator := func(cmd *cobra.Command) (*db.Migrator, *pgxpool.Pool, error) {
		schema, _ := cmd.Flags().GetString("schema")
		dir, _ := cmd.Flags().GetString("dir")

		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		pool, err := openPool(cmd.Context(), cfg)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrationSource(dir), schema), pool, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, pool, err := newMigrator(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, pool, err := newMigrator(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "public", "Target schema for migrations")
		c.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
		cmd.AddCommand(c)
	}
	return cmd
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, state, at)
	}
}

func dayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Inspect clinic days",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the end-of-day classification of a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts, err := attendanceOptions(cfg)
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := attendance.NewService(attendance.NewAttendanceRepoPG(pool), attendance.NewClosureRepoPG(pool),
				nil, nil, zerolog.Nop(), opts)

			date := svc.Today()
			if s, _ := cmd.Flags().GetString("date"); s != "" {
				if date, err = attendance.ParseDate(s, opts.Location); err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", s)
				}
			}
			result, err := svc.EndOfDay(cmd.Context(), date)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
	statusCmd.Flags().String("date", "", "Date to inspect (YYYY-MM-DD, default today)")
	cmd.AddCommand(statusCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := issueToken(cfg, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject, recorded as closed_by/confirmed_by")
	cmd.Flags().StringSlice("roles", []string{auth.RoleOperator}, "Roles granted by the token")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func issueToken(cfg *config.Config, subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("--subject is required")
	}
	for _, r := range roles {
		switch r {
		case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
		default:
			return "", fmt.Errorf("unknown role %q", r)
		}
	}
	return auth.IssueToken(auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)}, subject, roles, ttl)
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

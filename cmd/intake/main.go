package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/intake/internal/api"
	"github.com/ehr/intake/internal/assemble"
	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/domain/record"
	"github.com/ehr/intake/internal/extract"
	"github.com/ehr/intake/internal/nlp"
	"github.com/ehr/intake/internal/pipeline"
	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/internal/platform/db"
	"github.com/ehr/intake/internal/platform/middleware"
	"github.com/ehr/intake/internal/platform/ner"
	"github.com/ehr/intake/internal/platform/ocr"
	"github.com/ehr/intake/internal/terminology"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "intake",
		Short:         "Clinical document intake and coding pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(out io.Writer, env string, verbose bool) zerolog.Logger {
	var w io.Writer = out
	if env == "development" || verbose {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// app is the wired pipeline and its store.
type app struct {
	pipeline *pipeline.Pipeline
	repo     record.Repository
	pinger   db.Pinger
	close    func()
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	tables, err := terminology.LoadTables(cfg.MappingsFile)
	if err != nil {
		return nil, err
	}

	var model ner.TextToSpans = ner.Nop
	if cfg.NERURL != "" {
		model = ner.NewClient(cfg.NERURL, cfg.ModelTimeout)
	}
	var engine ocr.ImageToText = ocr.Unavailable
	if cfg.OCRURL != "" {
		engine = ocr.NewClient(cfg.OCRURL, cfg.ModelTimeout)
	}

	a := &app{close: func() {}}
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.repo, a.pinger, a.close = record.NewRepoPG(pool), pool, pool.Close
	case config.DriverSQLite:
		repo, err := record.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.repo, a.pinger, a.close = repo, repo, func() { repo.Close() }
	default:
		a.repo = record.NewMemoryRepo()
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Adapters: extract.New(extract.Options{
			OCR:         engine,
			MaxFileSize: cfg.MaxFileSize,
			Logger:      logger,
		}),
		Analyzer:  nlp.NewAnalyzer(model),
		Tables:    tables,
		Assembler: assemble.New(logger),
		Sink:      record.NewSink(a.repo, logger),
		Timeout:   cfg.DocumentTimeout,
		Logger:    logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	logger.Debug().
		Str("store", cfg.StoreDriver).
		Bool("ner", cfg.NERURL != "").
		Bool("ocr", cfg.OCRURL != "").
		Int("icd10_terms", tables.ICD10.Len()).
		Int("cpt_terms", tables.CPT.Len()).
		Msg("pipeline ready")
	return a, nil
}

func loadConfig(forServer bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(forServer); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// =========== process ===========

func processCmd() *cobra.Command {
	var file, dir, output string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a document or a directory of documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := processTarget(file, dir)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg.Env, verbose)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			var result interface{}
			if file != "" {
				result = a.pipeline.Process(ctx, target)
			} else {
				result, err = pipeline.NewBatch(a.pipeline, cfg.BatchWorkers, logger).Run(ctx, target)
				if err != nil {
					return err
				}
			}
			return writeOutput(output, result, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to a single document")
	cmd.Flags().StringVar(&dir, "dir", "", "Path to a directory of documents")
	cmd.Flags().StringVar(&output, "output", "", "Write JSON results to this file instead of stdout")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Debug logging")
	return cmd
}

// processTarget checks that exactly one of file and dir is set and exists
// with the right kind.
func processTarget(file, dir string) (string, error) {
	switch {
	case file != "" && dir != "":
		return "", errors.New("use either --file or --dir, not both")
	case file == "" && dir == "":
		return "", errors.New("one of --file or --dir is required")
	}
	target := file
	if dir != "" {
		target = dir
	}
	fi, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("path not found: %s", target)
	}
	if file != "" && fi.IsDir() {
		return "", fmt.Errorf("--file %s is a directory", target)
	}
	if dir != "" && !fi.IsDir() {
		return "", fmt.Errorf("--dir %s is not a directory", target)
	}
	return target, nil
}

// writeOutput writes v as indented JSON to path, creating parent
// directories, or to stdout when path is empty.
func writeOutput(path string, v interface{}, stdout io.Writer) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "Results written to %s\n", path)
	return nil
}

// =========== serve ===========

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func newServer(cfg *config.Config, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.MaxFileSize))

	if cfg.AuthEnabled() {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set: every request is treated as admin")
		e.Use(auth.DevAuthMiddleware())
	}

	e.GET("/health", db.HealthHandler(cfg.StoreDriver, a.pinger))

	apiV1 := e.Group("/api/v1")
	// Upload runs a whole document through the pipeline, so it gets the
	// document deadline plus headroom for the upload itself.
	api.NewDocumentHandler(a.pipeline, logger).RegisterRoutes(apiV1,
		middleware.RequestTimeout(cfg.DocumentTimeout+30*time.Second))
	record.NewHandler(a.repo).RegisterRoutes(apiV1, auth.RequireRole(auth.RoleReviewer, auth.RoleIntake))
	return e
}

func runServer(parent context.Context, cfg *config.Config) error {
	logger := newLogger(os.Stdout, cfg.Env, false)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	e := newServer(cfg, a, logger)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =========== migrate ===========

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})
	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.Migrations()), pool.Close, nil
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

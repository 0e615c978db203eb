// Command syn2mas runs a one-shot migration of a Synapse homeserver's
// identity and session state into a Matrix Authentication Service
// database. It is a thin ambient driver: it loads configuration, opens
// both database connections, and hands them to internal/migrate.Migrate,
// which contains the actual migration logic.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wisbric/syn2mas/internal/config"
	"github.com/wisbric/syn2mas/internal/migrate"
	"github.com/wisbric/syn2mas/internal/migrate/pg"
	"github.com/wisbric/syn2mas/internal/platform"
	"github.com/wisbric/syn2mas/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: building logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migration completed successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	providerMapping, err := loadProviderMapping(cfg.ProviderMappingPath)
	if err != nil {
		return fmt.Errorf("loading provider mapping: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(migrate.Collectors()...)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	sourcePool, err := platform.NewPostgresPool(ctx, cfg.SourceDatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to source database: %w", err)
	}
	defer sourcePool.Close()

	destPool, err := platform.NewPostgresPool(ctx, cfg.DestDatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to destination database: %w", err)
	}
	defer destPool.Close()

	// The source transaction is read-only at repeatable-read isolation so
	// every stream the reader exposes reflects one consistent snapshot
	// (§6).
	sourceTx, err := sourcePool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("beginning source transaction: %w", err)
	}
	defer sourceTx.Rollback(ctx)

	destTx, err := destPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning destination transaction: %w", err)
	}
	defer destTx.Rollback(ctx)

	// Defer foreign-key checks until commit so the orchestrator's stage
	// ordering never trips a constraint on a forward reference (§4.5).
	if _, err := destTx.Exec(ctx, "SET CONSTRAINTS ALL DEFERRED"); err != nil {
		return fmt.Errorf("deferring destination constraints: %w", err)
	}

	src := pg.NewReader(sourceTx)
	dst := pg.NewWriter(destTx)

	opts := migrate.Options{
		ServerName:        cfg.ServerName,
		Clock:             migrate.SystemClock{},
		RNG:               rand.Reader,
		ProviderIDMapping: providerMapping,
		BatchSize:         cfg.BatchSize,
		Logger:            logger,
	}

	if err := migrate.Migrate(ctx, src, dst, opts); err != nil {
		return fmt.Errorf("running migration: %w", err)
	}

	if err := destTx.Commit(ctx); err != nil {
		return fmt.Errorf("committing destination transaction: %w", err)
	}

	return nil
}

// loadProviderMapping reads a JSON object mapping Synapse auth_provider
// strings to destination upstream-provider UUIDs. An empty path yields an
// empty mapping, valid for homeservers with no upstream OAuth providers.
func loadProviderMapping(path string) (map[string]uuid.UUID, error) {
	if path == "" {
		return map[string]uuid.UUID{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	mapping := make(map[string]uuid.UUID, len(raw))
	for provider, id := range raw {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing provider ID for %q: %w", provider, err)
		}
		mapping[provider] = parsed
	}
	return mapping, nil
}

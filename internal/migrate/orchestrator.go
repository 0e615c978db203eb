// Package migrate implements the Synapse→MAS migration engine: a one-shot,
// streaming ETL that copies a Matrix homeserver's identity and session
// state out of a Synapse database and into a Matrix Authentication Service
// database.
//
// Migrate is the sole entry point. It consumes a SourceReader and a
// DestinationWriter — both external collaborators whose connection
// pooling, transaction setup, and pre-flight safety checks are the
// responsibility of the caller — and performs no I/O beyond what those two
// interfaces expose.
package migrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Options configures a single Migrate call.
type Options struct {
	// ServerName is the Matrix server name every source user ID is
	// validated against, e.g. "matrix.example.org".
	ServerName string

	// Clock supplies "now" for the clock-fallback paths (§9). Defaults to
	// SystemClock if nil.
	Clock Clock

	// RNG is the entropy source for every minted identifier. Must not be
	// nil; pass crypto/rand.Reader in production and a deterministic
	// io.Reader in tests that assert exact IDs.
	RNG io.Reader

	// ProviderIDMapping translates a Synapse auth_provider string to the
	// UUID of the corresponding upstream OAuth provider in MAS.
	ProviderIDMapping map[string]uuid.UUID

	// BatchSize overrides the write-buffer flush threshold (§4.3).
	// Defaults to DefaultBatchSize if <= 0.
	BatchSize int

	// Logger receives stage-boundary Info logs and the device-IP-parse
	// Warn log. Defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// Migrate performs a one-shot migration from src into dst, in the fixed
// stage order required by data dependencies (§4.11):
//
//	users → threepids → external_ids
//	      → unrefreshable_access_tokens
//	      → refreshable_token_pairs
//	      → devices
//
// The token stages must run before devices because they populate the
// session-ID index with timestamped IDs; devices inherits those IDs so
// each device's session is dated by the first token seen for it instead
// of by "now". All entities are created exactly once; nothing is mutated or
// deleted. Migrate returns the first error encountered and aborts
// immediately — partial destination state is unwound by dst's own
// transaction discipline, which Migrate never touches directly.
func Migrate(ctx context.Context, src SourceReader, dst DestinationWriter, opts Options) error {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RNG == nil {
		return errNilRNG
	}

	counts, err := src.CountRows(ctx)
	if err != nil {
		return &SourceReadError{Context: "counting rows", Err: err}
	}

	idx, err := timedStage(logger, "users", func() (*userIndex, error) {
		return stageUsers(ctx, src, dst, opts.ServerName, opts.RNG, counts.Users, opts.BatchSize)
	})
	if err != nil {
		return err
	}

	if err := timedStageErr(logger, "threepids", func() error {
		return stageThreepids(ctx, src, dst, opts.ServerName, opts.RNG, idx, opts.BatchSize)
	}); err != nil {
		return err
	}

	if err := timedStageErr(logger, "external_ids", func() error {
		return stageExternalIDs(ctx, src, dst, opts.ServerName, opts.RNG, idx, opts.ProviderIDMapping, opts.BatchSize)
	}); err != nil {
		return err
	}

	sessions := newSessionIndex(counts.Devices)

	if err := timedStageErr(logger, "unrefreshable_access_tokens", func() error {
		return stageUnrefreshableAccessTokens(ctx, src, dst, opts.ServerName, clock, opts.RNG, idx, sessions, opts.BatchSize)
	}); err != nil {
		return err
	}

	if err := timedStageErr(logger, "refreshable_token_pairs", func() error {
		return stageRefreshableTokenPairs(ctx, src, dst, opts.ServerName, clock, opts.RNG, idx, sessions, opts.BatchSize)
	}); err != nil {
		return err
	}

	if err := timedStageErr(logger, "devices", func() error {
		return stageDevices(ctx, src, dst, opts.ServerName, clock, opts.RNG, logger, idx, sessions, opts.BatchSize)
	}); err != nil {
		return err
	}

	return nil
}

var errNilRNG = errors.New("migrate: Options.RNG must not be nil")

func timedStage[T any](logger *slog.Logger, name string, fn func() (T, error)) (T, error) {
	logger.Info("migration stage starting", "stage", name)
	start := time.Now()
	result, err := fn()
	StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("migration stage failed", "stage", name, "error", err)
		var zero T
		return zero, err
	}
	logger.Info("migration stage finished", "stage", name, "duration", time.Since(start))
	return result, nil
}

func timedStageErr(logger *slog.Logger, name string, fn func() error) error {
	_, err := timedStage(logger, name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

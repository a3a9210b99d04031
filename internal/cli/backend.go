package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dshills/docreview/internal/cache"
	"github.com/dshills/docreview/internal/config"
	"github.com/dshills/docreview/internal/logging"
	"github.com/dshills/docreview/internal/providers"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

// errProvider marks a provider that could not be constructed, usually for
// a missing API key.
var errProvider = errors.New("provider unavailable")

// backend is everything a review needs besides its input: the provider
// (optionally behind the response cache), the run store and the engine.
type backend struct {
	engine *review.Engine
	store  store.Store
	opts   review.Options
}

type backendOptions struct {
	noCache bool
	// noStore keeps run data in memory only.
	noStore bool
}

func newBackend(cfg config.Config, log *logging.Logger, bo backendOptions) (*backend, error) {
	opts, err := review.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	completer, err := providers.New(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errProvider, err)
	}
	if cfg.Cache.Enabled && !bo.noCache {
		c, err := cache.New(true, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		completer = cache.Wrap(completer, c, cfg.Model)
	}

	var path string
	if !bo.noStore {
		if path, err = cfg.StorePath(); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	log.Debug("backend ready", "provider", completer.Name(), "model", cfg.Model, "store", path, "mode", string(opts.Mode))

	return &backend{
		engine: review.NewEngine(completer, st, opts, log),
		store:  st,
		opts:   opts,
	}, nil
}

func (b *backend) Close() error {
	return b.store.Close()
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// failureExitCode maps a failed run to the process exit code.
func failureExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case providers.IsAuthError(err), errors.Is(err, errProvider):
		return ExitAuthError
	case errors.Is(err, review.ErrInvalidRequest):
		return ExitUsageError
	default:
		return ExitRuntimeError
	}
}

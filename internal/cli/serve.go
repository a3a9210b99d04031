package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/api"
	"github.com/dshills/docreview/internal/config"
	"github.com/dshills/docreview/internal/logging"
)

const shutdownTimeout = 30 * time.Second

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review HTTP API",
	Long: `Serve the review HTTP API.

Runs are recorded in the run database and can be read back with
GET /api/reviews/{runID} or "docreview runs show".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := buildOverrides()
		if flagAddr != "" {
			overrides["server.addr"] = flagAddr
		}
		cfg, err := config.Load(overrides)
		if err != nil {
			return err
		}

		log := newLogger(cfg)
		b, err := newBackend(cfg, log, backendOptions{noCache: flagNoCache})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = failureExitCode(err)
			return nil
		}
		defer func() {
			if err := b.Close(); err != nil {
				log.Warn("closing run store", "error", err)
			}
		}()

		if err := serve(cmd.Context(), newHTTPServer(cfg, b, log), log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
		}
		return nil
	},
}

func newHTTPServer(cfg config.Config, b *backend, log *logging.Logger) *http.Server {
	handler := api.NewServer(b.engine, b.store, log, api.Config{
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		RedactPaths:    cfg.Privacy.RedactPaths,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Mode:           string(b.opts.Mode),
		Provider:       cfg.Provider,
		Model:          cfg.Model,
	})
	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, log *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("server started", "addr", srv.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default from server.addr)")
	serveCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama)")
	serveCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	serveCmd.Flags().StringVar(&flagMode, "mode", "", "Document mode (small, large)")
	serveCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the response cache")
}

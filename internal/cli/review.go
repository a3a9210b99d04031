package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/checklist"
	"github.com/dshills/docreview/internal/config"
	"github.com/dshills/docreview/internal/extract"
	"github.com/dshills/docreview/internal/logging"
	"github.com/dshills/docreview/internal/output"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

// Review flags
var (
	flagChecklist    string
	flagProvider     string
	flagModel        string
	flagMode         string
	flagFormat       string
	flagOut          string
	flagFailOn       string
	flagConcurrency  int
	flagCategorySize int
	flagRedactPaths  string
	flagNoRedact     bool
	flagNoCache      bool
	flagNoStore      bool
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagChecklist, "checklist", "c", "", "Checklist file (.yaml, .json or .csv)")
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	cmd.Flags().StringVar(&flagMode, "mode", "", "Document mode (small, large)")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown, sarif)")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Exit 1 when any item is at or worse than (none, pass, partial, fail)")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Maximum concurrent model calls")
	cmd.Flags().IntVar(&flagCategorySize, "category-size", 0, "Checklist items per model call")
	cmd.Flags().StringVar(&flagRedactPaths, "redact-paths", "", "Additional path globs whose content is withheld (comma-separated)")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().BoolVar(&flagNoStore, "no-store", false, "Do not record the run in the run database")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagMode != "" {
		m["documentMode"] = flagMode
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["failOn"] = flagFailOn
	}
	if flagConcurrency > 0 {
		m["concurrencyLimit"] = strconv.Itoa(flagConcurrency)
	}
	if flagCategorySize > 0 {
		m["categorySize"] = strconv.Itoa(flagCategorySize)
	}
	if flagChecklist != "" {
		m["checklistFile"] = flagChecklist
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	if flagLogFormat != "" {
		m["log.format"] = flagLogFormat
	}
	return m
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// loadInput reads the checklist and documents named by cfg and paths.
func loadInput(cfg config.Config, paths []string) ([]review.Document, []review.ChecklistItem, error) {
	if cfg.ChecklistFile == "" {
		return nil, nil, errors.New("no checklist given: use --checklist or set checklistFile")
	}
	items, err := checklist.Load(cfg.ChecklistFile)
	if err != nil {
		return nil, nil, err
	}
	patterns := append(append([]string(nil), cfg.Privacy.RedactPaths...), splitComma(flagRedactPaths)...)
	docs, err := extract.Load(paths, extract.Options{RedactPaths: patterns})
	if err != nil {
		return nil, nil, err
	}
	return docs, items, nil
}

var reviewCmd = &cobra.Command{
	Use:   "review <path>...",
	Short: "Review documents against a checklist",
	Long: `Review one or more documents against a checklist.

Each path may be a text, markdown, HTML, CSV, PDF, DOCX or image file, or a
directory. A directory holding only images is reviewed as one multi-page
document.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		if flagNoRedact {
			cfg.Privacy.RedactSecrets = false
			fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
		}

		docs, items, err := loadInput(cfg, args)
		if err != nil {
			return err
		}

		log := newLogger(cfg)
		b, err := newBackend(cfg, log, backendOptions{noCache: flagNoCache, noStore: flagNoStore})
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

		exitCode = runReview(cmd.Context(), b, cfg, log, docs, items, os.Stderr)
		return nil
	},
}

// runReview runs one tracked review, writes the report and returns the
// exit code.
func runReview(ctx context.Context, b *backend, cfg config.Config, log *logging.Logger, docs []review.Document, items []review.ChecklistItem, stderr io.Writer) int {
	runID := uuid.NewString()
	run := store.Run{
		ID:        runID,
		Mode:      string(b.opts.Mode),
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		Documents: len(docs),
		Items:     len(items),
	}
	report, err := store.Track(ctx, b.store, run, func(ctx context.Context) (*review.Report, error) {
		return b.engine.Run(ctx, review.Request{RunID: runID, Documents: docs, Items: items})
	})
	if err != nil {
		log.WithRun(runID).Debug("run failed", "error", err)
		fmt.Fprintf(stderr, "Error: %s\n", review.UserMessage(err))
		return failureExitCode(err)
	}

	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		return ExitRuntimeError
	}

	if thresholdMet(report.Items, cfg.FailOn) {
		return ExitFindings
	}
	return ExitSuccess
}

// thresholdMet reports whether any item is evaluated at or worse than failOn.
func thresholdMet(items []review.ChecklistItem, failOn string) bool {
	for _, it := range items {
		if review.MeetsThreshold(it.Evaluation, failOn) {
			return true
		}
	}
	return false
}

func init() {
	addReviewFlags(reviewCmd)
}

package review

import (
	"github.com/dshills/docreview/internal/config"
)

// Options are the tunables of one review run.
type Options struct {
	Mode Mode
	// ConcurrencyLimit bounds each fan-out level and, separately, the
	// completion calls in flight across all of them.
	ConcurrencyLimit        int
	MaxSplitEscalations     int
	MaxCompletenessAttempts int
	CategorySize            int
	TextOverlap             int
	ImageOverlap            int
	MaxTokens               int
	Temperature             float64
	RedactSecrets           bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Mode:                    ModeSmall,
		ConcurrencyLimit:        5,
		MaxSplitEscalations:     5,
		MaxCompletenessAttempts: defaultMaxCompletenessAttempts,
		CategorySize:            defaultCategorySize,
		TextOverlap:             200,
		ImageOverlap:            0,
		MaxTokens:               8192,
		RedactSecrets:           true,
	}
}

// OptionsFromConfig builds run options from the effective configuration.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	mode, err := ParseMode(cfg.DocumentMode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Mode:                    mode,
		ConcurrencyLimit:        cfg.ConcurrencyLimit,
		MaxSplitEscalations:     cfg.MaxSplitEscalations,
		MaxCompletenessAttempts: cfg.MaxCompletenessAttempts,
		CategorySize:            cfg.CategorySize,
		TextOverlap:             cfg.TextOverlap,
		ImageOverlap:            cfg.ImageOverlap,
		MaxTokens:               cfg.MaxTokens,
		Temperature:             cfg.Temperature,
		RedactSecrets:           cfg.Privacy.RedactSecrets,
	}, nil
}

// normalized fills zero or negative values that would stall a run.
func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = d.ConcurrencyLimit
	}
	if o.MaxSplitEscalations < 0 {
		o.MaxSplitEscalations = 0
	}
	if o.MaxCompletenessAttempts <= 0 {
		o.MaxCompletenessAttempts = d.MaxCompletenessAttempts
	}
	if o.CategorySize <= 0 {
		o.CategorySize = d.CategorySize
	}
	if o.TextOverlap < 0 {
		o.TextOverlap = 0
	}
	if o.ImageOverlap < 0 {
		o.ImageOverlap = 0
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	return o
}

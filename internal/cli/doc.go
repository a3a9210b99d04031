// Package cli wires together the Cobra command tree for the docreview binary.
//
// It defines the root command and all subcommands (review, serve, runs,
// config, models, cache, version), binds flags, reads configuration, builds
// the review engine with its cache and run store, and returns deterministic
// exit codes for CI gating.
package cli

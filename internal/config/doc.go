// Package config loads docreview configuration with viper.
//
// Precedence (highest to lowest):
//  1. CLI flags, passed to [Load] as overrides
//  2. Environment variables (DOCREVIEW_PROVIDER, DOCREVIEW_DOCUMENT_MODE, ...)
//  3. Config file ($XDG_CONFIG_HOME/docreview/config.yaml)
//  4. Built-in defaults
//
// [Save] writes the file back as YAML and [SetField] updates one key.
package config

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/docreview/internal/atomicfile"
)

const (
	appName   = "docreview"
	envPrefix = "DOCREVIEW"
)

// Config is the effective docreview configuration.
type Config struct {
	Provider                string        `mapstructure:"provider" yaml:"provider"`
	Model                   string        `mapstructure:"model" yaml:"model"`
	Format                  string        `mapstructure:"format" yaml:"format"`
	FailOn                  string        `mapstructure:"failOn" yaml:"failOn"`
	DocumentMode            string        `mapstructure:"documentMode" yaml:"documentMode"`
	ConcurrencyLimit        int           `mapstructure:"concurrencyLimit" yaml:"concurrencyLimit"`
	MaxSplitEscalations     int           `mapstructure:"maxSplitEscalations" yaml:"maxSplitEscalations"`
	MaxCompletenessAttempts int           `mapstructure:"maxCompletenessAttempts" yaml:"maxCompletenessAttempts"`
	CategorySize            int           `mapstructure:"categorySize" yaml:"categorySize"`
	TextOverlap             int           `mapstructure:"textOverlap" yaml:"textOverlap"`
	ImageOverlap            int           `mapstructure:"imageOverlap" yaml:"imageOverlap"`
	MaxTokens               int           `mapstructure:"maxTokens" yaml:"maxTokens"`
	Temperature             float64       `mapstructure:"temperature" yaml:"temperature"`
	ChecklistFile           string        `mapstructure:"checklistFile" yaml:"checklistFile,omitempty"`
	Cache                   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Privacy                 PrivacyConfig `mapstructure:"privacy" yaml:"privacy"`
	Store                   StoreConfig   `mapstructure:"store" yaml:"store"`
	Log                     LogConfig     `mapstructure:"log" yaml:"log"`
	Server                  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// CacheConfig controls the completion response cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir        string `mapstructure:"dir" yaml:"dir,omitempty"`
	TTLSeconds int    `mapstructure:"ttlSeconds" yaml:"ttlSeconds"`
}

// PrivacyConfig controls what document content may leave the machine.
type PrivacyConfig struct {
	RedactSecrets bool     `mapstructure:"redactSecrets" yaml:"redactSecrets"`
	RedactPaths   []string `mapstructure:"redactPaths" yaml:"redactPaths,omitempty"`
}

// StoreConfig locates the run database. An empty path means the default
// location under the config directory.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// APIKey, when set, is required as a bearer token on /api routes.
	APIKey      string `mapstructure:"apiKey" yaml:"apiKey,omitempty"`
	MaxUploadMB int    `mapstructure:"maxUploadMB" yaml:"maxUploadMB"`
	// CORSOrigins enables CORS for the listed browser origins.
	CORSOrigins []string `mapstructure:"corsOrigins" yaml:"corsOrigins,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:                "anthropic",
		Model:                   "claude-sonnet-4-20250514",
		Format:                  "text",
		FailOn:                  "none",
		DocumentMode:            "small",
		ConcurrencyLimit:        5,
		MaxSplitEscalations:     5,
		MaxCompletenessAttempts: 3,
		CategorySize:            10,
		TextOverlap:             200,
		ImageOverlap:            0,
		MaxTokens:               8192,
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 32,
		},
	}
}

// keys lists every settable key with its environment variable.
var keys = []struct {
	key string
	env string
}{
	{"provider", "PROVIDER"},
	{"model", "MODEL"},
	{"format", "FORMAT"},
	{"failOn", "FAIL_ON"},
	{"documentMode", "DOCUMENT_MODE"},
	{"concurrencyLimit", "CONCURRENCY_LIMIT"},
	{"maxSplitEscalations", "MAX_SPLIT_ESCALATIONS"},
	{"maxCompletenessAttempts", "MAX_COMPLETENESS_ATTEMPTS"},
	{"categorySize", "CATEGORY_SIZE"},
	{"textOverlap", "TEXT_OVERLAP"},
	{"imageOverlap", "IMAGE_OVERLAP"},
	{"maxTokens", "MAX_TOKENS"},
	{"temperature", "TEMPERATURE"},
	{"checklistFile", "CHECKLIST_FILE"},
	{"cache.enabled", "CACHE_ENABLED"},
	{"cache.dir", "CACHE_DIR"},
	{"cache.ttlSeconds", "CACHE_TTL_SECONDS"},
	{"privacy.redactSecrets", "REDACT_SECRETS"},
	{"privacy.redactPaths", "REDACT_PATHS"},
	{"store.path", "STORE_PATH"},
	{"log.level", "LOG_LEVEL"},
	{"log.format", "LOG_FORMAT"},
	{"server.addr", "SERVER_ADDR"},
	{"server.apiKey", "SERVER_API_KEY"},
	{"server.maxUploadMB", "SERVER_MAX_UPLOAD_MB"},
	{"server.corsOrigins", "SERVER_CORS_ORIGINS"},
}

// ConfigDir returns the platform-appropriate config directory.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", appName), nil
	default:
		return filepath.Join(home, ".config", appName), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load builds the effective config from the default config file.
// Precedence: overrides > DOCREVIEW_* environment > file > defaults.
func Load(overrides map[string]string) (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path, overrides)
}

// LoadFrom is Load with an explicit config file. A missing file is not an
// error. Only non-empty overrides are applied.
func LoadFrom(path string, overrides map[string]string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	for k, val := range overrides {
		if val == "" {
			continue
		}
		if !known(k) {
			return Config{}, fmt.Errorf("unknown config key: %s", k)
		}
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path on top of the defaults without consulting the
// environment, so the result can be edited and saved back. A missing file
// yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("format", d.Format)
	v.SetDefault("failOn", d.FailOn)
	v.SetDefault("documentMode", d.DocumentMode)
	v.SetDefault("concurrencyLimit", d.ConcurrencyLimit)
	v.SetDefault("maxSplitEscalations", d.MaxSplitEscalations)
	v.SetDefault("maxCompletenessAttempts", d.MaxCompletenessAttempts)
	v.SetDefault("categorySize", d.CategorySize)
	v.SetDefault("textOverlap", d.TextOverlap)
	v.SetDefault("imageOverlap", d.ImageOverlap)
	v.SetDefault("maxTokens", d.MaxTokens)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("checklistFile", "")
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttlSeconds", d.Cache.TTLSeconds)
	v.SetDefault("privacy.redactSecrets", d.Privacy.RedactSecrets)
	v.SetDefault("privacy.redactPaths", d.Privacy.RedactPaths)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.apiKey", d.Server.APIKey)
	v.SetDefault("server.maxUploadMB", d.Server.MaxUploadMB)
	v.SetDefault("server.corsOrigins", d.Server.CORSOrigins)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		_ = v.BindEnv(k.key, envPrefix+"_"+k.env)
	}
	return v
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

func known(key string) bool {
	for _, k := range keys {
		if strings.EqualFold(k.key, key) {
			return true
		}
	}
	return false
}

// Save writes cfg to the default config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg as YAML to path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

// Keys returns every settable key in file order.
func Keys() []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.key
	}
	return out
}

// SetField sets a single config field by key name.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "format":
		cfg.Format = value
	case "failOn":
		cfg.FailOn = value
	case "documentMode":
		cfg.DocumentMode = value
	case "concurrencyLimit":
		cfg.ConcurrencyLimit, err = atoi(key, value)
	case "maxSplitEscalations":
		cfg.MaxSplitEscalations, err = atoi(key, value)
	case "maxCompletenessAttempts":
		cfg.MaxCompletenessAttempts, err = atoi(key, value)
	case "categorySize":
		cfg.CategorySize, err = atoi(key, value)
	case "textOverlap":
		cfg.TextOverlap, err = atoi(key, value)
	case "imageOverlap":
		cfg.ImageOverlap, err = atoi(key, value)
	case "maxTokens":
		cfg.MaxTokens, err = atoi(key, value)
	case "temperature":
		cfg.Temperature, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("temperature must be a number: %w", err)
		}
	case "checklistFile":
		cfg.ChecklistFile = value
	case "cache.enabled":
		cfg.Cache.Enabled, err = parseBool(key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		cfg.Cache.TTLSeconds, err = atoi(key, value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = parseBool(key, value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "store.path":
		cfg.Store.Path = value
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	case "server.addr":
		cfg.Server.Addr = value
	case "server.apiKey":
		cfg.Server.APIKey = value
	case "server.maxUploadMB":
		cfg.Server.MaxUploadMB, err = atoi(key, value)
	case "server.corsOrigins":
		cfg.Server.CORSOrigins = splitList(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	validFormats    = []string{"text", "json", "markdown", "sarif"}
	validFailOn     = []string{"none", "pass", "partial", "fail"}
	validModes      = []string{"small", "large"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate reports the first setting that would make a run misbehave.
func (c Config) Validate() error {
	switch {
	case c.Provider == "":
		return errors.New("provider must be set")
	case !slices.Contains(validFormats, c.Format):
		return fmt.Errorf("invalid format %q (want one of %s)", c.Format, strings.Join(validFormats, ", "))
	case !slices.Contains(validFailOn, c.FailOn):
		return fmt.Errorf("invalid failOn %q (want one of %s)", c.FailOn, strings.Join(validFailOn, ", "))
	case !slices.Contains(validModes, c.DocumentMode):
		return fmt.Errorf("invalid documentMode %q (want small or large)", c.DocumentMode)
	case c.ConcurrencyLimit <= 0:
		return fmt.Errorf("concurrencyLimit must be positive, got %d", c.ConcurrencyLimit)
	case c.CategorySize <= 0:
		return fmt.Errorf("categorySize must be positive, got %d", c.CategorySize)
	case c.MaxSplitEscalations < 0:
		return fmt.Errorf("maxSplitEscalations must not be negative, got %d", c.MaxSplitEscalations)
	case c.MaxCompletenessAttempts <= 0:
		return fmt.Errorf("maxCompletenessAttempts must be positive, got %d", c.MaxCompletenessAttempts)
	case c.TextOverlap < 0 || c.ImageOverlap < 0:
		return errors.New("overlaps must not be negative")
	case c.MaxTokens <= 0:
		return fmt.Errorf("maxTokens must be positive, got %d", c.MaxTokens)
	case c.Server.MaxUploadMB <= 0:
		return fmt.Errorf("server.maxUploadMB must be positive, got %d", c.Server.MaxUploadMB)
	case c.Log.Format != "" && !slices.Contains(validLogFormats, c.Log.Format):
		return fmt.Errorf("invalid log format %q (want auto, text or json)", c.Log.Format)
	}
	return nil
}

// StorePath returns the run database path, falling back to runs.db in the
// config directory.
func (c Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

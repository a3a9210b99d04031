package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/dshills/docreview/internal/atomicfile"
	"github.com/dshills/docreview/internal/providers"
)

const entryExt = ".json"

// Entry is one cached completion.
type Entry struct {
	Key          string                 `json:"key"`
	Content      string                 `json:"content"`
	FinishReason providers.FinishReason `json:"finishReason"`
	TokensUsed   int                    `json:"tokensUsed,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// Cache stores completion responses on disk, one file per request hash.
// A disabled cache misses every lookup and drops every write.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// New creates a cache rooted at dir, or at the default cache directory when
// dir is empty. A non-positive ttlSeconds keeps entries forever.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: true,
	}, nil
}

// Get returns the cached response for key.
func (c *Cache) Get(key string) (providers.Response, bool) {
	if !c.enabled {
		return providers.Response{}, false
	}
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return providers.Response{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key {
		return providers.Response{}, false
	}
	if c.expired(e) {
		_ = os.Remove(path)
		return providers.Response{}, false
	}
	return providers.Response{Content: e.Content, FinishReason: e.FinishReason, TokensUsed: e.TokensUsed}, true
}

// Put stores resp under key.
func (c *Cache) Put(key string, resp providers.Response) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(Entry{
		Key:          key,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		TokensUsed:   resp.TokensUsed,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := atomicfile.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	if !c.enabled {
		return 0, nil
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	removed := 0
	for _, f := range files {
		if filepath.Ext(f.Name()) != entryExt {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string `json:"dir"`
	Enabled    bool   `json:"enabled"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// Stats scans the cache directory.
func (c *Cache) Stats() (Stats, error) {
	st := Stats{Dir: c.dir, Enabled: c.enabled}
	if !c.enabled {
		return st, nil
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, f := range files {
		if filepath.Ext(f.Name()) != entryExt {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		st.Entries++
		st.TotalBytes += info.Size()

		data, err := os.ReadFile(filepath.Join(c.dir, f.Name()))
		if err != nil {
			continue
		}
		var e Entry
		if json.Unmarshal(data, &e) == nil && c.expired(e) {
			st.Expired++
		}
	}
	return st, nil
}

// Dir returns the cache directory, or "" when disabled.
func (c *Cache) Dir() string { return c.dir }

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool { return c.enabled }

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && time.Since(e.CreatedAt) > c.ttl
}

func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+entryExt)
}

// RequestKey hashes everything that can change a completion: the provider,
// model, both prompts, every image and the sampling settings.
func RequestKey(provider, model string, req providers.Request) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	write(provider)
	write(model)
	write(req.SystemPrompt)
	write(req.UserPrompt)
	for _, img := range req.Images {
		write(img.MediaType)
		sum := sha256.Sum256(img.Data)
		write(hex.EncodeToString(sum[:]))
	}
	write(strconv.Itoa(req.MaxTokens))
	write(strconv.FormatFloat(req.Temperature, 'g', -1, 64))
	return hex.EncodeToString(h.Sum(nil))
}

// Completer serves repeated requests from a Cache. Only complete answers
// (finish reason stop) are stored.
type Completer struct {
	next  providers.Completer
	cache *Cache
	model string
}

// Wrap returns next unchanged when the cache is disabled.
func Wrap(next providers.Completer, c *Cache, model string) providers.Completer {
	if c == nil || !c.Enabled() {
		return next
	}
	return &Completer{next: next, cache: c, model: model}
}

func (c *Completer) Name() string { return c.next.Name() }

func (c *Completer) Complete(ctx context.Context, req providers.Request) (providers.Response, error) {
	key := RequestKey(c.next.Name(), c.model, req)
	if resp, ok := c.cache.Get(key); ok {
		return resp, nil
	}
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.FinishReason == providers.FinishStop {
		// A failed write only costs a future cache miss.
		_ = c.cache.Put(key, resp)
	}
	return resp, nil
}

// DefaultDir returns the platform cache directory for docreview.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "docreview"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "docreview"), nil
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "docreview", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "docreview", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "docreview"), nil
	}
}

package panels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/mitchellh/hashstructure/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of live panel instances
const DefaultCacheSize = 256

// cacheEntry holds one initialized panel. Its mutex serializes Render calls so
// state memoized by the instance is never touched concurrently.
type cacheEntry struct {
	mu       sync.Mutex
	hash     string
	name     string
	panel    Panel
	lastHTML string
}

// Cache memoizes initialized panel instances by a hash of their name and
// settings. Instances that fail to render stay cached; only initialization
// failures are retried on the next call.
//
// At most one instance per hash is cached. An entry evicted while a render
// still holds it stays alive until that render returns, so at capacity a
// following miss may briefly run a second instance for the same hash.
type Cache struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.Mutex
	entries *lru.Cache
	group   singleflight.Group
}

// NewCache creates a render cache holding at most size instances
func NewCache(registry *Registry, size int, logger *zap.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}

	c := &Cache{
		registry: registry,
		logger:   logger,
		entries:  lru.New(size),
	}
	c.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		c.logger.Debug("Evicted panel instance", zap.Any("hash", key))
	}
	return c
}

// SettingsHash derives the cache key for a panel name and settings payload.
// Map ordering does not affect the result.
func SettingsHash(name string, settings map[string]any) (string, error) {
	h, err := hashstructure.Hash(struct {
		Name     string
		Settings map[string]any
	}{name, settings}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("failed to hash panel settings: %w", err)
	}
	return strconv.FormatUint(h, 16), nil
}

// Len returns the number of cached instances
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) lookup(hash string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(hash)
	if !ok {
		return nil, false
	}
	return v.(*cacheEntry), true
}

// RenderPanel renders the panel identified by name and settings. Failures
// never propagate; they produce the fallback markup with Failed set.
func (c *Cache) RenderPanel(ctx context.Context, name string, settings map[string]any) models.PanelRender {
	e, err := c.instance(ctx, name, settings)
	if err != nil {
		c.logger.Warn("Panel unavailable",
			zap.String("panel", name),
			zap.Error(err))
		return Fallback()
	}

	e.mu.Lock()
	result, err := e.panel.Render(ctx)
	if err == nil {
		e.lastHTML = result.HTML
	}
	e.mu.Unlock()

	if err != nil {
		c.logger.Warn("Panel failed to render",
			zap.String("panel", name),
			zap.String("hash", e.hash),
			zap.Error(fmt.Errorf("%w: %v", models.ErrPanelRenderFailed, err)))
		return Fallback()
	}

	return result
}

// instance returns the cached panel for name+settings, initializing it on the
// first miss. Concurrent misses on one hash share a single initialization.
func (c *Cache) instance(ctx context.Context, name string, settings map[string]any) (*cacheEntry, error) {
	hash, err := SettingsHash(name, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPanelInitializationFailed, err)
	}

	if e, ok := c.lookup(hash); ok {
		return e, nil
	}

	v, err, _ := c.group.Do(hash, func() (interface{}, error) {
		// Another caller may have finished initializing while we waited.
		if e, ok := c.lookup(hash); ok {
			return e, nil
		}

		factory, err := c.registry.Lookup(name)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("Initializing panel", zap.String("panel", name), zap.String("hash", hash))

		panel := factory()
		if err := panel.Initialize(ctx, settings); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrPanelInitializationFailed, name, err)
		}

		e := &cacheEntry{hash: hash, name: name, panel: panel}
		c.mu.Lock()
		c.entries.Add(hash, e)
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	e, ok := v.(*cacheEntry)
	if !ok {
		return nil, errors.New("unexpected panel cache value")
	}
	return e, nil
}

// LastHTML returns the markup of the most recent successful render for
// name+settings, if the instance is cached.
func (c *Cache) LastHTML(name string, settings map[string]any) (string, bool) {
	hash, err := SettingsHash(name, settings)
	if err != nil {
		return "", false
	}
	e, ok := c.lookup(hash)
	if !ok {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHTML, e.lastHTML != ""
}

package models

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Observer receives cache outcomes for instrumentation. kind is "handle" or
// "explainer"; result is "hit", "loaded", "shared", or "failed".
type Observer func(kind, result string)

// loadedCache caches load results forever, with single-flight semantics
// during the load: concurrent callers for one key observe exactly one loader
// invocation and share its result. Failed loads are not cached, so the next
// caller retries.
type loadedCache struct {
	kind    string
	group   singleflight.Group
	mu      sync.RWMutex
	values  map[string]interface{}
	observe Observer
}

func newLoadedCache(kind string) *loadedCache {
	return &loadedCache{kind: kind, values: make(map[string]interface{})}
}

func (c *loadedCache) note(result string) {
	if c.observe != nil {
		c.observe(c.kind, result)
	}
}

func (c *loadedCache) getOrLoad(ctx context.Context, key string, loader func(context.Context) (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		c.note("hit")
		return v, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a previous winner may have stored it.
		c.mu.RLock()
		v, ok := c.values[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.values[key] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		c.note("failed")
		return nil, err
	}
	if shared {
		c.note("shared")
		log.Debug().Str("key", key).Msg("Cache load shared across concurrent callers")
	} else {
		c.note("loaded")
	}
	return v, nil
}

func (c *loadedCache) peek(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *loadedCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Cache is the process-wide model and explainer cache. Handles key by model
// slug, explainers by task id. Entries live until process exit.
type Cache struct {
	handles    *loadedCache
	explainers *loadedCache
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{handles: newLoadedCache("handle"), explainers: newLoadedCache("explainer")}
}

// SetObserver installs an instrumentation callback. Install before the cache
// serves traffic; the field is not synchronized.
func (c *Cache) SetObserver(obs Observer) {
	c.handles.observe = obs
	c.explainers.observe = obs
}

// GetOrLoadHandle resolves the handle for a model slug, invoking loader at
// most once concurrently per slug.
func (c *Cache) GetOrLoadHandle(ctx context.Context, slug string, loader func(context.Context) (*Handle, error)) (*Handle, error) {
	v, err := c.handles.getOrLoad(ctx, slug, func(ctx context.Context) (interface{}, error) {
		return loader(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// GetOrLoadExplainer resolves the cached explainer for a task id.
func (c *Cache) GetOrLoadExplainer(ctx context.Context, taskID string, loader func(context.Context) (Explainer, error)) (Explainer, error) {
	v, err := c.explainers.getOrLoad(ctx, taskID, func(ctx context.Context) (interface{}, error) {
		return loader(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Explainer), nil
}

// PeekHandle returns a cached handle without loading.
func (c *Cache) PeekHandle(slug string) (*Handle, bool) {
	v, ok := c.handles.peek(slug)
	if !ok {
		return nil, false
	}
	return v.(*Handle), true
}

// Sizes reports how many handles and explainers are resident.
func (c *Cache) Sizes() (handles, explainers int) {
	return c.handles.size(), c.explainers.size()
}

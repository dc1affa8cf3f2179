package hardware

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// Cache holds the last detected capability. Concurrent refreshes share one
// detection run.
type Cache struct {
	det *Detector
	sf  singleflight.Group

	mu  sync.RWMutex
	cur *model.HardwareEncodingCapability
}

// NewCache wraps a detector. Nothing runs until Get or Refresh is called.
func NewCache(det *Detector) *Cache {
	return &Cache{det: det}
}

// Get returns the cached capability, detecting once if needed.
func (c *Cache) Get(ctx context.Context) model.HardwareEncodingCapability {
	c.mu.RLock()
	cur := c.cur
	c.mu.RUnlock()
	if cur != nil {
		return *cur
	}
	return c.load(ctx, false)
}

// Refresh re-runs detection and replaces the cached value. The transcoder
// health check uses it to pick up an ffmpeg that was missing at startup.
func (c *Cache) Refresh(ctx context.Context) model.HardwareEncodingCapability {
	return c.load(ctx, true)
}

func (c *Cache) load(ctx context.Context, force bool) model.HardwareEncodingCapability {
	v, _, _ := c.sf.Do("detect", func() (any, error) {
		if !force {
			c.mu.RLock()
			cur := c.cur
			c.mu.RUnlock()
			if cur != nil {
				return *cur, nil
			}
		}
		// The result outlives the first caller, so its cancellation must not
		// leak into the cached value.
		capability := c.det.Detect(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.cur = &capability
		c.mu.Unlock()
		return capability, nil
	})
	return v.(model.HardwareEncodingCapability)
}

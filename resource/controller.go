package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for cached values.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentLoads is the maximum number of provider calls running at once
	// across every cache sharing this controller.
	// If 0, loads are not limited.
	MaxConcurrentLoads int64

	// LoadsPerSecond rate-limits provider calls issued by background workers.
	// If 0, unlimited.
	LoadsPerSecond float64

	// LoadBurst is the token bucket size for LoadsPerSecond.
	// Defaults to 1.
	LoadBurst int

	// IOLimitBytesPerSec is the maximum read throughput of value sources.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages resources shared by caches (memory, concurrency, rate).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	loadSem *semaphore.Weighted // nil if unlimited
	loading atomic.Int64

	// Rate
	loadLimiter *rate.Limiter
	ioLimiter   *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.LoadBurst <= 0 {
		cfg.LoadBurst = 1
	}

	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.MaxConcurrentLoads > 0 {
		c.loadSem = semaphore.NewWeighted(cfg.MaxConcurrentLoads)
	}

	if cfg.LoadsPerSecond > 0 {
		c.loadLimiter = rate.NewLimiter(rate.Limit(cfg.LoadsPerSecond), cfg.LoadBurst)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
// Non-blocking - callers decide what to evict.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireLoad reserves a provider call slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireLoad(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.loadSem != nil {
		if err := c.loadSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.loading.Add(1)
	return nil
}

// TryAcquireLoad attempts to reserve a provider call slot without blocking.
func (c *Controller) TryAcquireLoad() bool {
	if c == nil {
		return true
	}
	if c.loadSem != nil && !c.loadSem.TryAcquire(1) {
		return false
	}
	c.loading.Add(1)
	return true
}

// ReleaseLoad releases a provider call slot.
func (c *Controller) ReleaseLoad() {
	if c == nil {
		return
	}
	if c.loadSem != nil {
		c.loadSem.Release(1)
	}
	c.loading.Add(-1)
}

// LoadsInFlight returns the number of provider calls currently holding a slot.
func (c *Controller) LoadsInFlight() int64 {
	if c == nil {
		return 0
	}
	return c.loading.Load()
}

// WaitLoad blocks until the load rate limit allows one more provider call.
func (c *Controller) WaitLoad(ctx context.Context) error {
	if c == nil || c.loadLimiter == nil {
		return nil
	}
	return c.loadLimiter.Wait(ctx)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	if burst := c.ioLimiter.Burst(); bytes > burst {
		bytes = burst
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
// Returns true if tokens were acquired, false otherwise.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}

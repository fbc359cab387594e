package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits applied to background object store work.
type Config struct {
	// MaxInFlight is the maximum number of concurrent object store calls.
	// If 0, defaults to 1.
	MaxInFlight int64

	// OpsPerSecond is the maximum rate of object store calls.
	// If 0, unlimited.
	OpsPerSecond float64

	// Burst is the number of calls allowed above the rate at once.
	// If 0, defaults to max(1, MaxInFlight).
	Burst int
}

// Controller throttles background object store work. One Controller is
// shared by all the callers that must respect a common budget.
type Controller struct {
	cfg Config

	slots   *semaphore.Weighted
	limiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.MaxInFlight)
	}

	c := &Controller{
		cfg:   cfg,
		slots: semaphore.NewWeighted(cfg.MaxInFlight),
	}
	if cfg.OpsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.OpsPerSecond), cfg.Burst)
	}
	return c
}

// Acquire blocks until a slot is free and the rate allows one more call.
// Every successful Acquire must be paired with Release.
func (c *Controller) Acquire(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.slots.Release(1)
			return err
		}
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (c *Controller) Release() {
	if c == nil {
		return
	}
	c.slots.Release(1)
}

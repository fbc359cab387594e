package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Slots(t *testing.T) {
	c := NewController(Config{MaxInFlight: 2})

	require.NoError(t, c.Acquire(context.Background()))
	require.NoError(t, c.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Acquire(ctx), context.DeadlineExceeded)

	c.Release()
	require.NoError(t, c.Acquire(context.Background()))
}

func TestController_MaxInFlight(t *testing.T) {
	c := NewController(Config{MaxInFlight: 3})

	var (
		wg       sync.WaitGroup
		inFlight atomic.Int64
		peak     atomic.Int64
		granted  atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Acquire(context.Background()); err != nil {
				return
			}
			granted.Add(1)
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			c.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, int64(20), granted.Load())
}

func TestController_Rate(t *testing.T) {
	c := NewController(Config{MaxInFlight: 10, OpsPerSecond: 1, Burst: 1})

	require.NoError(t, c.Acquire(context.Background()))
	c.Release()

	// The bucket is empty; the next token arrives after a second.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, c.Acquire(ctx))

	// The failed wait returned its slot.
	for i := 0; i < 10; i++ {
		require.True(t, c.slots.TryAcquire(1))
	}
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.Acquire(context.Background()))
	c.Release()
}

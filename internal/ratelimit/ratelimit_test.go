// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRespectsBurst(t *testing.T) {
	lim := NewLimiter(Config{RatePerSecond: 1000, Burst: 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, lim.Acquire(ctx))
	}
}

func TestRegistryDefaultsPrePopulated(t *testing.T) {
	reg := NewRegistry(nil)
	lim := reg.For("openalex")
	assert.NotNil(t, lim)
	// Same source returns the same limiter instance (shared across
	// workers, per the concurrency model).
	assert.Same(t, lim, reg.For("openalex"))
}

func TestRegistryOverride(t *testing.T) {
	reg := NewRegistry(map[string]Config{"openalex": {RatePerSecond: 1, Burst: 1}})
	lim := reg.For("openalex")
	ctx := context.Background()
	require.NoError(t, lim.Acquire(ctx))

	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctxTimeout)
	assert.Error(t, err)
}

func TestResetAfterBlocksUntilElapsed(t *testing.T) {
	lim := NewLimiter(Config{RatePerSecond: 1000, Burst: 5})
	lim.ResetAfter(50 * time.Millisecond)

	// A context shorter than the reset window must fail with the
	// context's own deadline error, not some immediate burst-exceeded
	// error from rate.Limiter — that distinguishes "Acquire actually
	// blocked and then got cancelled" from "Acquire failed on the spot."
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctxTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A context outliving the reset window must succeed, and must not
	// return before the window has actually elapsed.
	start := time.Now()
	require.NoError(t, lim.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond,
		"Acquire returned before the reset window elapsed")
}

package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAcquireRelease(t *testing.T) {
	l := NewMergeLimiter(2, time.Second)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 2, l.ActiveCount())
	assert.Equal(t, 0, l.Available())

	l.Release()
	assert.Equal(t, 1, l.ActiveCount())
	assert.Equal(t, 1, l.Available())

	l.Release()
	assert.Equal(t, 0, l.ActiveCount())
}

func TestLimiterRejectsWhenFull(t *testing.T) {
	l := NewMergeLimiter(1, 50*time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTooManyMerges)
}

func TestLimiterHonorsCallerCancellation(t *testing.T) {
	l := NewMergeLimiter(1, time.Minute)

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterDefaults(t *testing.T) {
	l := NewMergeLimiter(0, 0)
	status := l.Status()
	assert.Equal(t, DefaultMaxConcurrentMerges, status.MaxConcurrent)
	assert.Equal(t, DefaultMaxConcurrentMerges, status.Available)
	assert.Equal(t, 0, status.Active)
}

func TestLimiterWaitForDrain(t *testing.T) {
	l := NewMergeLimiter(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))

	go func() {
		time.Sleep(150 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, l.WaitForDrain(ctx))
}

func TestLimiterWaitForDrainTimeout(t *testing.T) {
	l := NewMergeLimiter(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitForDrain(ctx), context.DeadlineExceeded)
}

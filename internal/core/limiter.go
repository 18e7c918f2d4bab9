package core

// limiter.go implements concurrency control for merge jobs.
//
// The limiter uses a semaphore pattern to restrict parallel merges to a
// configurable maximum. When all slots are occupied, new requests wait up
// to maxWait before failing with ErrTooManyMerges. WaitForDrain supports
// graceful shutdown by blocking until active jobs finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyMerges is returned when all merge slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyMerges = errors.New("too many concurrent merges, please try again later")

// DefaultMaxConcurrentMerges is the default limit for parallel merge jobs.
const DefaultMaxConcurrentMerges = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// MergeLimiter controls concurrent merge processing.
type MergeLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewMergeLimiter creates a limiter allowing at most maxConcurrent
// simultaneous merge jobs. Requests that cannot acquire a slot within
// maxWait receive ErrTooManyMerges.
func NewMergeLimiter(maxConcurrent int, maxWait time.Duration) *MergeLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentMerges
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &MergeLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a merge slot.
// Returns nil on success, ErrTooManyMerges if the timeout expires.
// The caller MUST call Release() when the job completes (use defer).
func (l *MergeLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from slot-wait timeout.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyMerges
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *MergeLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently active merge jobs.
func (l *MergeLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of available slots.
func (l *MergeLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active jobs complete or ctx is cancelled.
// Used during shutdown so in-flight merges can finish.
func (l *MergeLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a snapshot of the limiter's state for monitoring.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *MergeLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}

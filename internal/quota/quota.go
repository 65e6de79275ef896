// Package quota tracks the shared daily budget of external traffic-API calls.
// The baseline scheduler and the event trigger decrement the same counter;
// when it runs out, remaining requests for the day are dropped, never queued.
package quota

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned by Increment once the daily limit is reached.
var ErrExhausted = errors.New("quota: daily limit exhausted")

// Counter is the injected daily-budget state. Implementations reset on the
// local-day boundary; callers invoke ResetIfNewDay at the top of each tick.
type Counter interface {
	// Increment consumes one unit, or returns ErrExhausted without consuming.
	Increment(ctx context.Context) error
	// Remaining reports units left today.
	Remaining(ctx context.Context) (int, error)
	// ResetIfNewDay zeroes usage when now falls on a later local day than the
	// last recorded usage.
	ResetIfNewDay(ctx context.Context, now time.Time) error
}

// DayKey formats the local calendar day a timestamp falls on.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// MemoryCounter is a process-local Counter for single-process deployments.
type MemoryCounter struct {
	mu    sync.Mutex
	limit int
	used  int
	day   string
	loc   *time.Location
	now   func() time.Time
}

// NewMemory creates an in-memory counter with the given daily limit.
func NewMemory(limit int, loc *time.Location) *MemoryCounter {
	return &MemoryCounter{
		limit: limit,
		loc:   loc,
		now:   time.Now,
	}
}

// WithNow sets the clock, for tests.
func (c *MemoryCounter) WithNow(now func() time.Time) *MemoryCounter {
	c.now = now
	return c
}

func (c *MemoryCounter) Increment(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(c.now())
	if c.used >= c.limit {
		return ErrExhausted
	}
	c.used++
	return nil
}

func (c *MemoryCounter) Remaining(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(c.now())
	return c.limit - c.used, nil
}

func (c *MemoryCounter) ResetIfNewDay(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover(now)
	return nil
}

// rollover must be called with the lock held.
func (c *MemoryCounter) rollover(now time.Time) {
	day := DayKey(now, c.loc)
	if day != c.day {
		c.day = day
		c.used = 0
	}
}

package quota

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// UsageStore is the slice of the measurement store the persisted counter
// needs. Usage rows are keyed by local calendar day, so the daily reset is
// implicit: a new day reads as zero usage.
type UsageStore interface {
	QuotaUsage(ctx context.Context, day string) (int, error)
	AddQuotaUsage(ctx context.Context, day string, n int) (int, error)
}

// PersistedCounter is a Counter backed by the store, for deployments where
// more than one process shares the daily budget.
type PersistedCounter struct {
	store UsageStore
	limit int
	loc   *time.Location
	now   func() time.Time
}

// NewPersisted creates a store-backed counter with the given daily limit.
func NewPersisted(store UsageStore, limit int, loc *time.Location) *PersistedCounter {
	return &PersistedCounter{
		store: store,
		limit: limit,
		loc:   loc,
		now:   time.Now,
	}
}

// WithNow sets the clock, for tests.
func (c *PersistedCounter) WithNow(now func() time.Time) *PersistedCounter {
	c.now = now
	return c
}

func (c *PersistedCounter) Increment(ctx context.Context) error {
	day := DayKey(c.now(), c.loc)
	used, err := c.store.AddQuotaUsage(ctx, day, 1)
	if err != nil {
		return eris.Wrap(err, "quota: increment usage")
	}
	if used > c.limit {
		return ErrExhausted
	}
	return nil
}

func (c *PersistedCounter) Remaining(ctx context.Context) (int, error) {
	day := DayKey(c.now(), c.loc)
	used, err := c.store.QuotaUsage(ctx, day)
	if err != nil {
		return 0, eris.Wrap(err, "quota: read usage")
	}
	remaining := c.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetIfNewDay is a no-op for the persisted counter: usage rows are keyed
// by day, so a new day starts at zero without any mutation.
func (c *PersistedCounter) ResetIfNewDay(ctx context.Context, now time.Time) error {
	return nil
}

package webclient

import (
	"context"
	"time"
)

// RefreshOpts configures the automatic refresh schedule.
type RefreshOpts struct {
	// RefreshWindow is the time-before-expiry threshold that triggers a
	// renewal. Defaults to DefaultRefreshWindow.
	RefreshWindow time.Duration
	// Interval between freshness checks. Defaults to
	// DefaultPollInterval.
	Interval time.Duration
}

// StartAutomaticRefresh ensures an initial Acquire has run, then keeps
// the held token fresh: every Interval it checks whether the token is
// within RefreshWindow of expiry and renews it if so. Calling it while
// a schedule is already active is a no-op; tick failures are logged and
// never kill the schedule.
func (c *Client) StartAutomaticRefresh(ctx context.Context, opts RefreshOpts) error {
	window := opts.RefreshWindow
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if err := c.Acquire(ctx, AcquireOpts{RefreshWindow: window}); err != nil {
		return err
	}

	c.sched.Start(ctx, interval, func(ctx context.Context) error {
		tok := c.Token()
		if !tok.Valid() || !tok.ExpiresWithin(window) {
			return nil
		}
		return c.Acquire(ctx, AcquireOpts{ExpiringRefresh: true, RefreshWindow: window})
	})

	return nil
}

// StopAutomaticRefresh cancels the refresh schedule if one is active.
// An acquire already in flight is not interrupted.
func (c *Client) StopAutomaticRefresh() {
	c.sched.Stop()
}

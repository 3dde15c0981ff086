// Package scheduler runs a job once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"time"

	"github.com/google/logger"
)

// Daily fires Job every day at Hour:Minute in Location.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
	Job      func(ctx context.Context, now time.Time)

	now func() time.Time
}

// NextRun returns the first moment strictly after now that reads hour:minute
// in loc.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled.
func (d *Daily) Run(ctx context.Context) {
	clock := d.now
	if clock == nil {
		clock = time.Now
	}

	for {
		next := NextRun(clock(), d.Hour, d.Minute, d.Location)
		logger.Infof("next scheduled draw at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(clock()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		d.Job(ctx, clock())
	}
}

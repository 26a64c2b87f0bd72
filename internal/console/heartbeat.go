package console

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts 5-field cron expressions and descriptors such as
// "@every 30s".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a heartbeat schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("console: schedule %q: %w", expr, err)
	}
	return sched, nil
}

// RunHeartbeat refreshes presence of every session in r each time sched
// fires, until ctx is done.
func RunHeartbeat(ctx context.Context, r *Registry, sched cron.Schedule) {
	timer := time.NewTimer(time.Until(sched.Next(time.Now())))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.TouchAll(ctx)
			timer.Reset(time.Until(sched.Next(time.Now())))
		}
	}
}

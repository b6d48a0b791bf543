package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration returns the time from now until the next fire time of
// sched.
func nextCronDuration(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Schedule runs the auditor on the cron expression until ctx is done. An
// invalid expression is returned as an error before anything runs.
func (a *Auditor) Schedule(ctx context.Context, expr string) error {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("audit: parse cron %q: %w", expr, err)
	}

	timer := time.NewTimer(nextCronDuration(sched, a.now()))
	defer timer.Stop()
	a.log.Info().Str("cron", expr).Time("next", sched.Next(a.now())).Msg("audit: scheduled")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Error().Err(err).Msg("audit: scheduled run failed")
			}
			timer.Reset(nextCronDuration(sched, a.now()))
		}
	}
}

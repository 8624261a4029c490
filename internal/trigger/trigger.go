// Package trigger decides when a task's period fires and which firing cycle
// the resulting instances belong to.
//
// Firing is idempotent: the tracker persists the last fired cycle id per task
// and a boundary fires at most once no matter how often ticks run or how the
// process restarts. If the tracker was down across several boundaries, only
// the most recent one fires; missed boundaries are not backfilled.
package trigger

import (
	"time"

	"github.com/me/tempo/pkg/model"
	"github.com/robfig/cron/v3"
)

// cronLookback bounds how far back an unwatermarked cron task searches for
// its most recent fire time.
const cronLookback = 24 * time.Hour

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Due reports whether the task should fire now, given the last fired cycle
// id (empty when the task has never fired). On fire it returns the boundary
// time the new cycle is keyed by.
func Due(t *model.Task, lastCycle string, now time.Time) (time.Time, bool) {
	now = now.UTC()

	switch t.Period {
	case model.PeriodOnce:
		if lastCycle != "" {
			return time.Time{}, false
		}
		return now.Truncate(time.Minute), true

	case model.PeriodHourly, model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly:
		b := calendarBoundary(t.Period, now)
		if model.CycleID(b) == lastCycle {
			return time.Time{}, false
		}
		return b, true

	case model.PeriodCron:
		return cronDue(t.CronSpec, lastCycle, now)
	}

	return time.Time{}, false
}

// calendarBoundary truncates now to the period's most recent boundary, UTC.
// Weeks start Monday 00:00; months on the 1st 00:00.
func calendarBoundary(p model.Period, now time.Time) time.Time {
	switch p {
	case model.PeriodHourly:
		return now.Truncate(time.Hour)
	case model.PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case model.PeriodWeekly:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case model.PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// cronDue finds the most recent cron fire time in (lastFire, now]. Without a
// watermark it searches back at most cronLookback.
func cronDue(spec, lastCycle string, now time.Time) (time.Time, bool) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		// Unparseable specs are caught at catalog validation; treat as idle.
		return time.Time{}, false
	}

	var from time.Time
	if lastCycle == "" {
		from = now.Add(-cronLookback)
	} else {
		last, perr := time.ParseInLocation(model.CycleIDFormat, lastCycle, time.UTC)
		if perr != nil {
			return time.Time{}, false
		}
		from = last
	}

	next := sched.Next(from)
	if next.IsZero() || next.After(now) {
		return time.Time{}, false
	}

	// Advance to the latest fire at or before now so a long outage produces
	// one cycle, not a backlog.
	for {
		after := sched.Next(next)
		if after.IsZero() || after.After(now) {
			return next.UTC(), true
		}
		next = after
	}
}

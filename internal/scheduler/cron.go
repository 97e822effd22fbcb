package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/lendflow/pkg/schema"
)

// Named cadences accepted in a scheduled trigger's "schedule" key.
const (
	ScheduleHourly = "hourly"
	ScheduleDaily  = "daily"
	ScheduleWeekly = "weekly"
)

// Defaults applied when the trigger config omits "time" or "dayOfWeek".
const (
	DefaultTime      = "09:00"
	DefaultDayOfWeek = 1 // Monday
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var weekdays = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

// ScheduleToCron converts a scheduled trigger config to a 5-field cron
// expression. Config keys: schedule (hourly, daily, weekly, or a cron
// expression), time ("HH:MM", UTC) and dayOfWeek (0-6 or a weekday name).
func ScheduleToCron(cfg map[string]any) (string, error) {
	schedule, _ := cfg["schedule"].(string)
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "scheduled trigger requires a schedule")
	}

	hour, minute, err := parseClock(cfg["time"])
	if err != nil {
		return "", err
	}

	var expr string
	switch strings.ToLower(schedule) {
	case ScheduleHourly:
		expr = fmt.Sprintf("%d * * * *", minute)
	case ScheduleDaily:
		expr = fmt.Sprintf("%d %d * * *", minute, hour)
	case ScheduleWeekly:
		dow, err := parseWeekday(cfg["dayOfWeek"])
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf("%d %d * * %d", minute, hour, dow)
	default:
		expr = schedule
	}

	if _, err := cronParser.Parse(expr); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid schedule %q: %v", schedule, err).WithCause(err)
	}
	return expr, nil
}

// NextRun returns the first activation of cronExpr strictly after from, in UTC.
func NextRun(cronExpr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return sched.Next(from.UTC()), nil
}

func parseClock(v any) (hour, minute int, err error) {
	s, _ := v.(string)
	if s == "" {
		s = DefaultTime
	}
	t, perr := time.Parse("15:04", strings.TrimSpace(s))
	if perr != nil {
		return 0, 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid schedule time %q, want HH:MM", s).WithCause(perr)
	}
	return t.Hour(), t.Minute(), nil
}

func parseWeekday(v any) (int, error) {
	switch d := v.(type) {
	case nil:
		return DefaultDayOfWeek, nil
	case float64:
		if d >= 0 && d <= 6 && d == float64(int(d)) {
			return int(d), nil
		}
	case int:
		if d >= 0 && d <= 6 {
			return d, nil
		}
	case string:
		if n, ok := weekdays[strings.ToLower(d)]; ok {
			return n, nil
		}
		if n, err := strconv.Atoi(d); err == nil && n >= 0 && n <= 6 {
			return n, nil
		}
	}
	return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid dayOfWeek %v", v)
}

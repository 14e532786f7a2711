package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five fields, minute first. asynq's scheduler parses the same format, so an
// expression accepted here is accepted there.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// ValidateCronExpr rejects expressions the scheduler would not accept.
func ValidateCronExpr(expr string) error {
	_, err := parseCron(expr)
	return err
}

// NextCronTime returns the first run of expr strictly after from, in UTC.
func NextCronTime(expr string, from time.Time) (time.Time, error) {
	sched, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from.UTC()), nil
}

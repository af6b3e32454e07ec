// Package cronexpr validates and evaluates cron expressions for the
// scheduled trigger. It has no dependency on higher-level packages so it
// can be imported by both the catalog (for validation) and the scheduler
// (for computing next-run times).
package cronexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateExpression checks that a cron expression has 5 or 6
// whitespace-separated fields (or is a named descriptor like "@hourly") and
// that robfig/cron can parse it.
func ValidateExpression(expression string) error {
	if expression == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if !strings.HasPrefix(expression, "@") {
		fields := strings.Fields(expression)
		if len(fields) != 5 && len(fields) != 6 {
			return fmt.Errorf("cron expression must have 5 or 6 whitespace-separated fields, got %d", len(fields))
		}
	}
	if _, err := parser.Parse(expression); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Next returns the next activation time after `after` for a valid expression.
func Next(expression string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(expression)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

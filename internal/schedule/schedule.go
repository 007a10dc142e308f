// Package schedule triggers periodic analysis runs from a cron
// expression.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ParseCron validates a five-field cron expression or an @macro.
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return fmt.Errorf("empty cron expression")
	}

	// Macros and @every are handled by ParseStandard, which also
	// accepts plain 5-field specs.
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}

	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser5.Parse(e)
	return err
}

// Trigger calls a function on a cron schedule.
type Trigger struct {
	c *cron.Cron
}

// New validates expr and registers fn on it. The trigger does not
// fire until Run is called.
func New(expr string, fn func()) (*Trigger, error) {
	if err := ParseCron(expr); err != nil {
		return nil, fmt.Errorf("parsing schedule.cron: %w", err)
	}
	c := cron.New()
	if _, err := c.AddFunc(expr, fn); err != nil {
		return nil, fmt.Errorf("registering cron job: %w", err)
	}
	return &Trigger{c: c}, nil
}

// Run fires the schedule until ctx is cancelled, then waits for any
// in-flight trigger call to return.
func (t *Trigger) Run(ctx context.Context) error {
	t.c.Start()
	<-ctx.Done()
	stopCtx := t.c.Stop()
	<-stopCtx.Done()
	return nil
}

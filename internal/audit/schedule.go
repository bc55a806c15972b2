package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// purgeTimeout bounds one scheduled purge run.
const purgeTimeout = 4 * time.Minute

// Schedule registers p on a cron expression such as "@daily" or "0 3 * * *" and
// starts the scheduler. Overlapping runs are skipped. Call Stop on the
// returned cron to shut it down.
func Schedule(p *Purger, expr string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if _, err := p.Purge(ctx); err != nil {
			p.log.Errorf("scheduled purge: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("audit: schedule %q: %w", expr, err)
	}
	c.Start()
	return c, nil
}

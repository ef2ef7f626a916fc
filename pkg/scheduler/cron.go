package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type Job interface{ Run(ctx context.Context) }

// Cron schedules background jobs (the orphaned-lock sweep) with panic
// recovery so a misbehaving job cannot kill the scheduler.
type Cron struct {
	c *cron.Cron
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Cron{c: c}
}

func (cr *Cron) Start() { cr.c.Start() }

func (cr *Cron) Stop() {
	ctx := cr.c.Stop()
	<-ctx.Done()
}

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(context.Background()) })
}

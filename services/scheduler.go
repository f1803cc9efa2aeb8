// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// DeadlineScheduler arms a single delayed action and hands back a cancel
// function. A cancelled timer must never run its task; a fired task is
// expected to re-validate battle state before transitioning (the scheduler
// knows nothing about thresholds or statuses).
type DeadlineScheduler interface {
	After(d time.Duration, task func()) (cancel func())
}

// GocronScheduler runs delayed actions as one-shot gocron jobs.
type GocronScheduler struct {
	sched gocron.Scheduler
}

func NewGocronScheduler() (*GocronScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &GocronScheduler{sched: sched}, nil
}

func (g *GocronScheduler) After(d time.Duration, task func()) func() {
	job, err := g.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(d))),
		gocron.NewTask(task),
	)
	if err != nil {
		// Scheduler construction failures are programmer errors; fall back to
		// a plain timer so the deadline still fires.
		log.Printf("[Scheduler] ❌ Failed to create one-shot job: %v (falling back to timer)", err)
		timer := time.AfterFunc(d, task)
		return func() { timer.Stop() }
	}

	id := job.ID()
	return func() {
		if err := g.sched.RemoveJob(id); err != nil {
			// Job already ran or was removed; cancellation is idempotent.
			log.Printf("[Scheduler] Remove job %s: %v", id, err)
		}
	}
}

// Shutdown stops the underlying scheduler and drops all pending jobs.
func (g *GocronScheduler) Shutdown() error {
	return g.sched.Shutdown()
}

package autotuner

import (
	"context"

	"github.com/promodescuentos/dealwatcher/internal/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler drives an AutoTuner on a background cron schedule, in
// addition to the explicit startup call main makes. Scheduled runs are
// not coordinated with orchestrator cycles and may overlap them; the
// store's single database connection serializes their queries.
type Scheduler struct {
	cron *cron.Cron
	tune *AutoTuner
}

// NewScheduler builds a Scheduler that runs tune.Run on the given cron
// spec (e.g. "@every 6h").
func NewScheduler(tune *AutoTuner, spec string) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		logger.Info("AutoTuner: scheduled run starting")
		tune.Run(context.Background())
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, tune: tune}, nil
}

// Start begins the background schedule. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, then waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

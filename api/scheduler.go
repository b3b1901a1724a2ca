/*
scheduler.go - Automated overdue-detection scheduler

PURPOSE:
  Periodically sweeps all active loans for missed installments:
  flips their status to overdue, accrues moratory interest for the
  elapsed days, and marks the affected loans overdue.

DESIGN:
  - Backed by robfig/cron so operators express the cadence as a
    standard cron spec ("@hourly", "0 3 * * *", ...)
  - Accrual is idempotent per calendar day, so an aggressive schedule
    never double-charges
  - Each pass logs its result and feeds the overdue-loans gauge

USAGE:
  sched, err := NewOverdueScheduler(engine, "@hourly", log, m)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - handlers.go: TriggerOverdue endpoint (manual pass)
  - lending/moratory.go: DetectOverdue
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/metrics"
)

// OverdueScheduler runs the overdue-detection pass on a cron schedule.
type OverdueScheduler struct {
	engine  *lending.Engine
	cron    *cron.Cron
	log     *logrus.Logger
	metrics *metrics.Collector
}

// NewOverdueScheduler creates a scheduler from a cron spec.
func NewOverdueScheduler(engine *lending.Engine, spec string, log *logrus.Logger, m *metrics.Collector) (*OverdueScheduler, error) {
	s := &OverdueScheduler{
		engine:  engine,
		cron:    cron.New(),
		log:     log,
		metrics: m,
	}
	if _, err := s.cron.AddFunc(spec, s.runPass); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the scheduler in the background.
func (s *OverdueScheduler) Start() {
	s.cron.Start()
	s.log.Info("overdue scheduler started")
}

// Stop halts the scheduler and waits for a running pass to finish.
func (s *OverdueScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("overdue scheduler stopped")
}

func (s *OverdueScheduler) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	touched, err := s.engine.RunOverdueDetection(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduled overdue detection failed")
		return
	}
	s.metrics.SetOverdueLoans(touched)
	s.log.WithField("loans_touched", touched).Info("scheduled overdue detection complete")
}

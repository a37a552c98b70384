// services/scheduler.go
package services

import (
	"context"
	"fmt"

	"xp-ledger/logger"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the nightly recalculation (and audit export when configured).
type Scheduler struct {
	sched    gocron.Scheduler
	recalc   *Recalculator
	exporter *AuditExporter
	log      *logger.Logger
}

func NewScheduler(recalc *Recalculator, exporter *AuditExporter, log *logger.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, recalc: recalc, exporter: exporter, log: log.With("service", "Scheduler")}, nil
}

// Start registers the job on cronExpr (5-field crontab) and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context, cronExpr string) error {
	_, err := s.sched.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() { s.runNightly(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("xp-recalculation"),
	)
	if err != nil {
		return fmt.Errorf("schedule recalculation %q: %w", cronExpr, err)
	}
	s.sched.Start()
	s.log.Info("recalculation scheduled", "cron", cronExpr)
	return nil
}

func (s *Scheduler) runNightly(ctx context.Context) {
	report, err := s.recalc.RecalculateAll(ctx)
	if err != nil {
		s.log.Error("scheduled recalculation failed", "error", err)
		return
	}
	s.log.Info("scheduled recalculation done",
		"users", report.Users, "changed", report.Changed, "failures", len(report.Failures))

	if s.exporter == nil {
		return
	}
	if _, err := s.exporter.ExportAll(ctx); err != nil {
		s.log.Error("scheduled audit export failed", "error", err)
	}
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// Package scheduler drives market services on cron schedules and coordinates
// session transitions across markets.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"autostock/internal/config"
	cronrunner "autostock/internal/cron"
	"autostock/internal/models"
)

// MarketJobs is the part of a market service the scheduler drives.
type MarketJobs interface {
	SessionOpen() bool
	RunCycle(ctx context.Context, dir models.Direction) (models.CycleResult, error)
	CheckCredential(ctx context.Context) error
	SweepOrders() int
	LogStatus(ctx context.Context)
	Shutdown(cancelPending bool)
}

type job struct {
	name string
	spec string
	run  func(context.Context)
	// always runs regardless of the session
	always bool
}

// Scheduler owns one cron runner per market. Cycle and credential jobs of a
// market serialize inside the service; a job never overlaps itself.
type Scheduler struct {
	Market           string
	Service          MarketJobs
	Schedule         config.ScheduleConfig
	CancelOnShutdown bool
	Logger           *zap.Logger

	runner *cronrunner.Runner
}

func New(market string, svc MarketJobs, cfg config.MarketConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Market:           market,
		Service:          svc,
		Schedule:         cfg.Schedule,
		CancelOnShutdown: cfg.Order.CancelOnShutdown,
		Logger:           logger.With(zap.String("market", market)),
	}
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: "sell", spec: s.Schedule.Sell, run: s.cycle(models.DirectionSell)},
		{name: "buy", spec: s.Schedule.Buy, run: s.cycle(models.DirectionBuy)},
		{name: "credential", spec: s.Schedule.Credential, always: true, run: func(ctx context.Context) {
			_ = s.Service.CheckCredential(ctx)
		}},
		{name: "sweep", spec: s.Schedule.Sweep, always: true, run: func(context.Context) {
			s.Service.SweepOrders()
		}},
		{name: "status", spec: s.Schedule.Status, always: true, run: s.Service.LogStatus},
	}
}

func (s *Scheduler) cycle(dir models.Direction) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := s.Service.RunCycle(ctx, dir); err != nil {
			s.Logger.Warn("scheduled cycle failed", zap.String("direction", string(dir)), zap.Error(err))
		}
	}
}

// guard drops session-bound jobs while the market is closed.
func (s *Scheduler) guard(j job) func(context.Context) {
	return func(ctx context.Context) {
		if !j.always && !s.Service.SessionOpen() {
			s.Logger.Debug("job skipped, session closed", zap.String("job", j.name))
			return
		}
		j.run(ctx)
	}
}

// Start registers every job with a non-empty spec and starts the runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runner = cronrunner.New(s.Logger, ctx)
	for _, j := range s.jobs() {
		if j.spec == "" {
			continue
		}
		if _, err := s.runner.Add(s.Market+"_"+j.name, j.spec, s.guard(j)); err != nil {
			return err
		}
	}
	s.runner.Start()
	return nil
}

func (s *Scheduler) NextRuns() map[string]time.Time {
	if s.runner == nil {
		return map[string]time.Time{}
	}
	return s.runner.NextRuns()
}

// Stop waits for running jobs, then stops order monitoring.
func (s *Scheduler) Stop() {
	if s.runner != nil {
		s.runner.Stop()
	}
	s.Service.Shutdown(s.CancelOnShutdown)
}

package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"autostock/internal/config"
	"autostock/internal/models"
)

// Coordinator starts every market scheduler, watches session transitions and
// runs a sell-then-buy catch-up when a market opens.
type Coordinator struct {
	Schedulers []*Scheduler
	OpenPoll   time.Duration
	ClosedPoll time.Duration
	StatusLog  time.Duration
	Logger     *zap.Logger
	Now        func() time.Time

	wasOpen    map[string]bool
	lastStatus time.Time
}

func NewCoordinator(cfg config.CoordinatorConfig, logger *zap.Logger, schedulers ...*Scheduler) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		Schedulers: schedulers,
		OpenPoll:   cfg.OpenPoll,
		ClosedPoll: cfg.ClosedPoll,
		StatusLog:  cfg.StatusLog,
		Logger:     logger,
		Now:        time.Now,
	}
	if c.OpenPoll <= 0 {
		c.OpenPoll = 30 * time.Second
	}
	if c.ClosedPoll <= 0 {
		c.ClosedPoll = 5 * time.Minute
	}
	if c.StatusLog <= 0 {
		c.StatusLog = time.Hour
	}
	return c
}

// Run blocks until ctx is done. Schedulers are stopped and order trackers
// shut down before it returns.
func (c *Coordinator) Run(ctx context.Context) error {
	c.wasOpen = map[string]bool{}
	c.lastStatus = c.Now()

	started := make([]*Scheduler, 0, len(c.Schedulers))
	defer func() {
		for _, s := range started {
			s.Stop()
		}
		c.Logger.Info("coordinator stopped")
	}()
	for _, s := range c.Schedulers {
		if err := s.Start(ctx); err != nil {
			return err
		}
		started = append(started, s)
		c.Logger.Info("market scheduler started", zap.String("market", s.Market), zap.Any("next_runs", s.NextRuns()))
	}

	g, gctx := errgroup.WithContext(ctx)
	defer func() { _ = g.Wait() }()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		anyOpen := c.poll(gctx, g)
		if c.Now().Sub(c.lastStatus) >= c.StatusLog {
			c.lastStatus = c.Now()
			for _, s := range c.Schedulers {
				s.Service.LogStatus(ctx)
			}
		}
		if anyOpen {
			timer.Reset(c.OpenPoll)
		} else {
			timer.Reset(c.ClosedPoll)
		}
	}
}

func (c *Coordinator) poll(ctx context.Context, g *errgroup.Group) bool {
	anyOpen := false
	for _, s := range c.Schedulers {
		open := s.Service.SessionOpen()
		if open && !c.wasOpen[s.Market] {
			c.Logger.Info("session opened, running catch-up", zap.String("market", s.Market))
			svc := s.Service
			g.Go(func() error {
				for _, dir := range []models.Direction{models.DirectionSell, models.DirectionBuy} {
					if ctx.Err() != nil {
						return nil
					}
					if _, err := svc.RunCycle(ctx, dir); err != nil {
						c.Logger.Warn("catch-up cycle failed", zap.String("direction", string(dir)), zap.Error(err))
					}
				}
				return nil
			})
		} else if !open && c.wasOpen[s.Market] {
			c.Logger.Info("session closed", zap.String("market", s.Market))
		}
		c.wasOpen[s.Market] = open
		anyOpen = anyOpen || open
	}
	return anyOpen
}

package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner wraps one robfig/cron instance. Each market owns its own Runner.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
	names   map[cron.EntryID]string
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
		names:   map[cron.EntryID]string{},
	}
}

// Add registers a named job. Jobs receive the runner's base context.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		job(r.baseCtx)
	})
	if err != nil {
		return 0, err
	}
	r.names[id] = name
	return id, nil
}

// NextRuns reports the next activation of every named job.
func (r *Runner) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time, len(r.names))
	for _, e := range r.cron.Entries() {
		if name, ok := r.names[e.ID]; ok {
			out[name] = e.Next
		}
	}
	return out
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.names)))
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/config"
	"autostock/internal/models"
)

type fakeMarket struct {
	open atomic.Bool

	mu          sync.Mutex
	cycles      []models.Direction
	credentials int
	sweeps      int
	statuses    int
	shutdown    []bool
}

func (f *fakeMarket) SessionOpen() bool { return f.open.Load() }

func (f *fakeMarket) RunCycle(ctx context.Context, dir models.Direction) (models.CycleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, dir)
	return models.CycleResult{Direction: dir}, nil
}

func (f *fakeMarket) CheckCredential(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials++
	return nil
}

func (f *fakeMarket) SweepOrders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0
}

func (f *fakeMarket) LogStatus(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
}

func (f *fakeMarket) Shutdown(cancelPending bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = append(f.shutdown, cancelPending)
}

func (f *fakeMarket) cycleLog() []models.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Direction(nil), f.cycles...)
}

func marketConfig() config.MarketConfig {
	return config.MarketConfig{
		Schedule: config.ScheduleConfig{
			Sell:       "@every 30m",
			Buy:        "@every 60m",
			Credential: "@every 30m",
			Sweep:      "@every 20m",
			Status:     "@every 5m",
		},
		Order: config.OrderConfig{CancelOnShutdown: true},
	}
}

func TestScheduler_ClosedSessionSkipsOnlyCycles(t *testing.T) {
	fm := &fakeMarket{}
	s := New("kr", fm, marketConfig(), nil)
	ctx := context.Background()

	for _, j := range s.jobs() {
		s.guard(j)(ctx)
	}
	assert.Empty(t, fm.cycleLog())
	assert.Equal(t, 1, fm.sweeps)
	assert.Equal(t, 1, fm.credentials)
	assert.Equal(t, 1, fm.statuses)

	fm.open.Store(true)
	for _, j := range s.jobs() {
		s.guard(j)(ctx)
	}
	assert.Equal(t, []models.Direction{models.DirectionSell, models.DirectionBuy}, fm.cycleLog())
	assert.Equal(t, 2, fm.sweeps)
}

func TestScheduler_StartRegistersJobs(t *testing.T) {
	fm := &fakeMarket{}
	s := New("us", fm, marketConfig(), nil)
	require.NoError(t, s.Start(context.Background()))

	runs := s.NextRuns()
	assert.Len(t, runs, 5)
	assert.Contains(t, runs, "us_sell")
	assert.Contains(t, runs, "us_credential")

	s.Stop()
	assert.Equal(t, []bool{true}, fm.shutdown)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	cfg := marketConfig()
	cfg.Schedule.Buy = "every hour"
	s := New("us", &fakeMarket{}, cfg, nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestCoordinator_CatchUpOnOpenTransition(t *testing.T) {
	kr := &fakeMarket{}
	kr.open.Store(true)
	us := &fakeMarket{}

	cfg := marketConfig()
	c := NewCoordinator(config.CoordinatorConfig{
		OpenPoll:   5 * time.Millisecond,
		ClosedPoll: 5 * time.Millisecond,
		StatusLog:  time.Hour,
	}, nil, New("kr", kr, cfg, nil), New("us", us, cfg, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(kr.cycleLog()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.Direction{models.DirectionSell, models.DirectionBuy}, kr.cycleLog())
	assert.Empty(t, us.cycleLog())

	us.open.Store(true)
	require.Eventually(t, func() bool { return len(us.cycleLog()) == 2 }, time.Second, 5*time.Millisecond)

	// Staying open does not repeat the catch-up.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, kr.cycleLog(), 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Equal(t, []bool{true}, kr.shutdown)
	assert.Equal(t, []bool{true}, us.shutdown)
}

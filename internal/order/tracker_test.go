package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/broker"
	"autostock/internal/config"
	"autostock/internal/errs"
	"autostock/internal/models"
)

type fakeAccount struct {
	mu        sync.Mutex
	nextID    int
	filled    map[string]int64
	brokerCxl map[string]bool
	placeErr  error
	cancelErr error
	// fillOnCancel simulates a fill that lands while the cancel is in flight.
	fillOnCancel bool
	cancels      atomic.Int64
	// beforeAck runs inside PlaceOrder before the ack is returned.
	beforeAck func()
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{filled: map[string]int64{}, brokerCxl: map[string]bool{}}
}

func (f *fakeAccount) Balance(ctx context.Context) (models.Balance, error) {
	return models.Balance{}, nil
}

func (f *fakeAccount) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	if f.beforeAck != nil {
		f.beforeAck()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return broker.OrderAck{}, f.placeErr
	}
	f.nextID++
	return broker.OrderAck{OrderID: "ord-" + string(rune('0'+f.nextID))}, nil
}

func (f *fakeAccount) OrderStatus(ctx context.Context, id string) (broker.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return broker.OrderStatus{OrderID: id, FilledQty: f.filled[id], Cancelled: f.brokerCxl[id]}, nil
}

func (f *fakeAccount) CancelOrder(ctx context.Context, id string) error {
	f.cancels.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fillOnCancel {
		f.filled[id] = 10
		return errors.New("order already filled")
	}
	return f.cancelErr
}

func (f *fakeAccount) fill(id string, qty int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filled[id] = qty
}

type collector struct {
	mu   sync.Mutex
	done []models.PendingOrder
}

func (c *collector) add(o models.PendingOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = append(c.done, o)
}

func (c *collector) all() []models.PendingOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.PendingOrder(nil), c.done...)
}

func newTracker(acct *fakeAccount, timeout time.Duration) (*Tracker, *collector) {
	tr := New("kr", acct, config.OrderConfig{Timeout: timeout, PollInterval: 5 * time.Millisecond}, nil)
	c := &collector{}
	tr.OnTerminal = c.add
	return tr, c
}

func buy(sym string) models.Intent {
	return models.Intent{Symbol: sym, Side: models.SideBuy, Quantity: 10, Price: decimal.NewFromInt(1000), Reason: models.ReasonDeclineRank}
}

func TestTracker_Fill(t *testing.T) {
	acct := newFakeAccount()
	tr, c := newTracker(acct, time.Minute)

	o, err := tr.Submit(context.Background(), buy("005930"))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Pending())

	acct.fill(o.OrderID, 4)
	time.Sleep(20 * time.Millisecond)
	sum := tr.Summary()
	require.Equal(t, 1, sum.TotalPending)
	assert.Equal(t, int64(4), sum.Orders[0].FilledQty)

	acct.fill(o.OrderID, 10)
	require.Eventually(t, func() bool { return tr.Pending() == 0 }, time.Second, 5*time.Millisecond)
	tr.Shutdown(false)
	tr.Wait()

	done := c.all()
	require.Len(t, done, 1)
	assert.Equal(t, models.OrderFilled, done[0].Status)
	assert.NotNil(t, done[0].FinishedAt)
	assert.Zero(t, acct.cancels.Load())
}

func TestTracker_BrokerCancel(t *testing.T) {
	acct := newFakeAccount()
	tr, c := newTracker(acct, time.Minute)
	o, err := tr.Submit(context.Background(), buy("A"))
	require.NoError(t, err)

	acct.mu.Lock()
	acct.brokerCxl[o.OrderID] = true
	acct.mu.Unlock()

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.OrderCancelled, c.all()[0].Status)
	tr.Shutdown(false)
	tr.Wait()
}

func TestTracker_TimeoutCancelsExactlyOnce(t *testing.T) {
	acct := newFakeAccount()
	tr, c := newTracker(acct, 15*time.Millisecond)
	_, err := tr.Submit(context.Background(), buy("A"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	tr.Shutdown(true)
	tr.Wait()

	assert.Equal(t, models.OrderTimedOut, c.all()[0].Status)
	assert.Len(t, c.all(), 1)
	assert.Equal(t, int64(1), acct.cancels.Load())
}

func TestTracker_TimeoutCancelFailure(t *testing.T) {
	acct := newFakeAccount()
	acct.cancelErr = errors.New("broker unavailable")
	tr, c := newTracker(acct, 15*time.Millisecond)
	_, err := tr.Submit(context.Background(), buy("A"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	tr.Shutdown(false)
	tr.Wait()

	assert.Equal(t, models.OrderCancelFailed, c.all()[0].Status)
	assert.Equal(t, int64(1), acct.cancels.Load())
	assert.Zero(t, tr.Pending())
}

func TestTracker_FillRacingCancelResolvesOnce(t *testing.T) {
	acct := newFakeAccount()
	acct.fillOnCancel = true
	tr, c := newTracker(acct, 15*time.Millisecond)
	_, err := tr.Submit(context.Background(), buy("A"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	tr.Shutdown(true)
	tr.Wait()

	done := c.all()
	require.Len(t, done, 1)
	assert.Equal(t, models.OrderFilled, done[0].Status)
	assert.Equal(t, int64(10), done[0].FilledQty)
	assert.Equal(t, int64(1), acct.cancels.Load())
}

func TestTracker_SubmitErrors(t *testing.T) {
	acct := newFakeAccount()
	acct.placeErr = errors.New("rejected: insufficient cash")
	tr, _ := newTracker(acct, time.Minute)

	_, err := tr.Submit(context.Background(), buy("A"))
	assert.ErrorIs(t, err, errs.ErrOrder)
	assert.Zero(t, tr.Pending())

	in := buy("A")
	in.Quantity = 0
	_, err = tr.Submit(context.Background(), in)
	assert.ErrorIs(t, err, errs.ErrOrder)

	tr.Shutdown(false)
	_, err = tr.Submit(context.Background(), buy("A"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTracker_SweepAndSummary(t *testing.T) {
	acct := newFakeAccount()
	tr, c := newTracker(acct, 24*time.Hour)
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	now := base
	var mu sync.Mutex
	tr.Now = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	_, err := tr.Submit(context.Background(), buy("A"))
	require.NoError(t, err)
	sell := buy("B")
	sell.Side = models.SideSell
	mu.Lock()
	now = base.Add(50 * time.Minute)
	mu.Unlock()
	_, err = tr.Submit(context.Background(), sell)
	require.NoError(t, err)

	sum := tr.Summary()
	assert.Equal(t, 2, sum.TotalPending)
	assert.Equal(t, 1, sum.BuyOrders)
	assert.Equal(t, 1, sum.SellOrders)
	assert.Equal(t, "A", sum.Orders[0].Symbol)

	mu.Lock()
	now = base.Add(61 * time.Minute)
	mu.Unlock()
	assert.Equal(t, 1, tr.Sweep(time.Hour))
	assert.Equal(t, "B", tr.Summary().Orders[0].Symbol)

	tr.Shutdown(true)
	tr.Wait()
	assert.Len(t, c.all(), 1)
	assert.Equal(t, models.OrderCancelled, c.all()[0].Status)
}

func TestTracker_AckDuringShutdownIsNotTracked(t *testing.T) {
	for _, cancelPending := range []bool{false, true} {
		acct := newFakeAccount()
		tr, c := newTracker(acct, time.Minute)
		acct.beforeAck = func() { tr.Shutdown(cancelPending) }

		o, err := tr.Submit(context.Background(), buy("A"))
		require.NoError(t, err)
		assert.NotEmpty(t, o.OrderID)
		assert.Zero(t, tr.Pending())
		tr.Wait()
		assert.Empty(t, c.all())

		if cancelPending {
			assert.Equal(t, models.OrderCancelled, o.Status)
			assert.EqualValues(t, 1, acct.cancels.Load())
		} else {
			assert.Equal(t, models.OrderSubmitted, o.Status)
			assert.Zero(t, acct.cancels.Load())
		}
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autostock/internal/cooldown"
	"autostock/internal/credential"
	"autostock/internal/errs"
	"autostock/internal/metrics"
	"autostock/internal/models"
	"autostock/internal/notify"
	"autostock/internal/order"
	"autostock/internal/repository"
	"autostock/internal/session"
	"autostock/internal/strategy"
)

const journalTimeout = 5 * time.Second

// Planner turns a market snapshot into trade intents.
type Planner interface {
	PlanBuys(ctx context.Context) (strategy.BuyPlan, error)
	PlanSells(ctx context.Context) (strategy.SellPlan, error)
}

// CredentialHealth reports the token state of a market.
type CredentialHealth interface {
	Health() credential.Health
}

// TokenRefresher is implemented by credentials that expire and can be reissued.
type TokenRefresher interface {
	GetValidToken(ctx context.Context, forceRefresh bool) (credential.Token, error)
}

// MarketService runs trading cycles for one market. Cycles and credential
// checks of the same market never overlap.
type MarketService struct {
	Market      string
	Clock       *session.Clock
	Credential  CredentialHealth
	Engine      Planner
	Orders      *order.Tracker
	Cooldown    *cooldown.Tracker
	Floors      *strategy.Floors
	Stats       *strategy.Stats
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Journal     repository.OrderJournal
	Logger      *zap.Logger
	DryRun      bool
	OrderMaxAge time.Duration
	Now         func() time.Time

	mu sync.Mutex
}

type Status struct {
	Market           string                 `json:"market"`
	SessionOpen      bool                   `json:"session_open"`
	LocalTime        time.Time              `json:"local_time"`
	NextOpen         time.Time              `json:"next_open"`
	PendingOrders    int                    `json:"pending_orders"`
	CooldownCount    int                    `json:"cooldown_count"`
	CredentialHealth credential.Health      `json:"credential_health"`
	BuysEnabled      bool                   `json:"buys_enabled"`
	PersistenceError string                 `json:"persistence_error,omitempty"`
	DryRun           bool                   `json:"dry_run"`
	Stats            strategy.StatsSnapshot `json:"stats"`
}

func (s *MarketService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *MarketService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RunCycle runs one buy or sell pass. A cycle that aborts returns
// Executed=false together with the cause.
func (s *MarketService) RunCycle(ctx context.Context, dir models.Direction) (models.CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	res := models.CycleResult{
		CycleID:   uuid.NewString(),
		Market:    s.Market,
		Direction: dir,
		StartedAt: start,
		Intents:   []models.Intent{},
	}
	log := s.logger().With(zap.String("cycle_id", res.CycleID), zap.String("direction", string(dir)))

	err := s.runLocked(ctx, dir, &res, log)
	res.Duration = s.now().Sub(start).String()

	outcome := "executed"
	switch {
	case err != nil:
		outcome = errs.Kind(err)
		log.Warn("cycle aborted", zap.String("message", res.Message), zap.Error(err))
	case !res.Executed:
		outcome = "skipped"
		log.Info("cycle finished without orders", zap.String("message", res.Message))
	default:
		log.Info("cycle finished", zap.String("message", res.Message), zap.Int("intents", len(res.Intents)))
	}
	s.Metrics.ObserveCycle(s.Market, dir, outcome, s.now().Sub(start))
	return res, err
}

func (s *MarketService) runLocked(ctx context.Context, dir models.Direction, res *models.CycleResult, log *zap.Logger) error {
	if s.Clock != nil && !s.Clock.IsOpen(s.now()) {
		res.Message = "market closed"
		return nil
	}
	if err := s.ensureToken(ctx); err != nil {
		res.Message = "credential unavailable"
		return err
	}

	var intents []models.Intent
	switch dir {
	case models.DirectionBuy:
		if err := s.persistenceErr(); err != nil {
			res.Message = "buys disabled: state store degraded"
			return err
		}
		plan, err := s.Engine.PlanBuys(ctx)
		if err != nil {
			res.Message = err.Error()
			return s.checkAuth(ctx, err)
		}
		for _, sk := range plan.Skipped {
			log.Info("buy candidate skipped", zap.String("symbol", sk.Symbol), zap.String("reason", sk.Reason))
		}
		intents, res.Message = plan.Intents, plan.Message
	case models.DirectionSell:
		plan, err := s.Engine.PlanSells(ctx)
		if err != nil {
			res.Message = err.Error()
			return s.checkAuth(ctx, err)
		}
		intents, res.Message = plan.Intents, plan.Message
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
	if len(intents) == 0 {
		return nil
	}

	submitted, err := s.execute(ctx, intents, log)
	res.Intents = intents
	res.Executed = submitted > 0
	if s.DryRun {
		res.Message = fmt.Sprintf("dry run: %d intents not submitted", len(intents))
	}
	return err
}

// execute submits intents in order. An auth failure stops the remaining
// submissions; other order errors are recorded per intent.
func (s *MarketService) execute(ctx context.Context, intents []models.Intent, log *zap.Logger) (int, error) {
	submitted := 0
	for i := range intents {
		in := &intents[i]
		s.Metrics.IntentPlanned(s.Market, *in)
		fields := []zap.Field{
			zap.String("symbol", in.Symbol),
			zap.String("side", string(in.Side)),
			zap.Int64("quantity", in.Quantity),
			zap.String("price", in.Price.String()),
			zap.String("reason", in.Reason),
			zap.Bool("dry_run", s.DryRun),
		}
		if s.DryRun {
			log.Info("intent", fields...)
			continue
		}
		po, err := s.Orders.Submit(ctx, *in)
		if err != nil {
			in.Error = err.Error()
			log.Warn("order submit failed", append(fields, zap.Error(err))...)
			if errors.Is(err, errs.ErrAuth) {
				return submitted, s.checkAuth(ctx, err)
			}
			continue
		}
		in.OrderID = po.OrderID
		submitted++
		log.Info("order submitted", append(fields, zap.String("order_id", po.OrderID))...)
		s.afterSubmit(ctx, *in)
	}
	if s.Orders != nil {
		s.Metrics.SetPending(s.Market, s.Orders.Pending())
	}
	return submitted, nil
}

// afterSubmit applies the state side effects of an accepted order.
func (s *MarketService) afterSubmit(ctx context.Context, in models.Intent) {
	if s.Stats != nil {
		if in.Side == models.SideBuy {
			s.Stats.BuySucceeded()
		} else {
			s.Stats.SellSucceeded()
		}
	}
	switch in.Reason {
	case models.ReasonStopLoss:
		if s.Cooldown != nil {
			if err := s.Cooldown.RecordStopLoss(ctx, in.Symbol, in.AvgPrice, in.Price, in.ProfitRate); err != nil {
				s.notify(ctx, notify.EventPersistenceError, in.Symbol, "cooldown write failed: "+err.Error())
			}
			s.Metrics.SetCooldowns(s.Market, s.Cooldown.Count())
		}
		s.notify(ctx, notify.EventStopLoss, in.Symbol,
			fmt.Sprintf("sell %d @ %s, loss %s%%", in.Quantity, in.Price, in.ProfitRate.Shift(2).StringFixed(2)))
	case models.ReasonTakeProfit:
		if s.Floors != nil {
			if err := s.Floors.Record(ctx, in.Symbol, in.Price); err != nil {
				s.notify(ctx, notify.EventPersistenceError, in.Symbol, "sell floor write failed: "+err.Error())
			}
		}
	}
}

func (s *MarketService) ensureToken(ctx context.Context) error {
	r, ok := s.Credential.(TokenRefresher)
	if !ok {
		return nil
	}
	if _, err := r.GetValidToken(ctx, false); err != nil {
		return s.checkAuth(ctx, err)
	}
	return nil
}

func (s *MarketService) checkAuth(ctx context.Context, err error) error {
	if errors.Is(err, errs.ErrAuth) {
		s.notify(ctx, notify.EventAuthError, "", err.Error())
	}
	return err
}

func (s *MarketService) persistenceErr() error {
	if s.Cooldown != nil {
		if err := s.Cooldown.Err(); err != nil {
			return err
		}
	}
	if s.Floors != nil {
		if err := s.Floors.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *MarketService) notify(ctx context.Context, typ, symbol, msg string) {
	if s.Notifier == nil {
		return
	}
	_ = s.Notifier.Notify(ctx, notify.Event{
		Type:    typ,
		Market:  s.Market,
		Symbol:  symbol,
		Message: msg,
		At:      s.now(),
	})
}

// HandleTerminal is installed as the order tracker's terminal hook.
func (s *MarketService) HandleTerminal(o models.PendingOrder) {
	s.Metrics.OrderFinished(o)
	if s.Orders != nil {
		s.Metrics.SetPending(s.Market, s.Orders.Pending())
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if s.Journal != nil {
		if err := s.Journal.RecordOrder(ctx, o); err != nil {
			s.logger().Error("order journal write failed", zap.String("order_id", o.OrderID), zap.Error(err))
		}
	}
	if o.Status == models.OrderCancelFailed {
		s.notify(ctx, notify.EventCancelFailed, o.Symbol,
			fmt.Sprintf("order %s (%s %d) may still be live at the broker", o.OrderID, o.Side, o.Quantity))
	}
}

// CheckCredential refreshes the token ahead of expiry. Markets with static
// keys have nothing to do.
func (s *MarketService) CheckCredential(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ensureToken(ctx)
	if err != nil {
		s.logger().Error("credential check failed", zap.Error(err))
		return err
	}
	if s.Credential != nil {
		h := s.Credential.Health()
		s.logger().Debug("credential checked", zap.String("state", h.State))
	}
	return nil
}

// SweepOrders drops tracked orders older than OrderMaxAge.
func (s *MarketService) SweepOrders() int {
	if s.Orders == nil {
		return 0
	}
	maxAge := s.OrderMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	n := s.Orders.Sweep(maxAge)
	if n > 0 {
		s.logger().Warn("stale orders swept", zap.Int("count", n))
	}
	s.Metrics.SetPending(s.Market, s.Orders.Pending())
	return n
}

// SessionOpen reports whether the market is trading right now.
func (s *MarketService) SessionOpen() bool {
	return s.Clock == nil || s.Clock.IsOpen(s.now())
}

func (s *MarketService) Status(ctx context.Context) Status {
	now := s.now()
	st := Status{Market: s.Market, DryRun: s.DryRun}
	if s.Clock != nil {
		st.SessionOpen = s.Clock.IsOpen(now)
		st.LocalTime = s.Clock.LocalNow(now)
		st.NextOpen = s.Clock.NextOpen(now)
	}
	if s.Orders != nil {
		st.PendingOrders = s.Orders.Pending()
	}
	if s.Cooldown != nil {
		st.CooldownCount = s.Cooldown.Count()
	}
	if s.Credential != nil {
		st.CredentialHealth = s.Credential.Health()
	}
	if err := s.persistenceErr(); err != nil {
		st.PersistenceError = err.Error()
	} else {
		st.BuysEnabled = true
	}
	if s.Stats != nil {
		st.Stats = s.Stats.Snapshot()
	}
	s.Metrics.SetSessionOpen(s.Market, st.SessionOpen)
	s.Metrics.SetCooldowns(s.Market, st.CooldownCount)
	s.Metrics.SetPending(s.Market, st.PendingOrders)
	return st
}

// LogStatus writes the current status as one structured line.
func (s *MarketService) LogStatus(ctx context.Context) {
	st := s.Status(ctx)
	s.logger().Info("market status",
		zap.Bool("session_open", st.SessionOpen),
		zap.Int("pending_orders", st.PendingOrders),
		zap.Int("cooldown_count", st.CooldownCount),
		zap.String("credential", st.CredentialHealth.State),
		zap.Bool("buys_enabled", st.BuysEnabled),
		zap.Float64("buy_success_rate", st.Stats.BuySuccessRate),
		zap.Float64("sell_success_rate", st.Stats.SellSuccessRate),
	)
}

func (s *MarketService) OrderSummary() order.Summary {
	if s.Orders == nil {
		return order.Summary{Orders: []models.PendingOrder{}}
	}
	return s.Orders.Summary()
}

// OrderHistory reads journaled orders. Without a journal it returns nothing.
func (s *MarketService) OrderHistory(ctx context.Context, p repository.ListOrdersParams) ([]models.OrderRecord, error) {
	if s.Journal == nil {
		return []models.OrderRecord{}, nil
	}
	p.Market = s.Market
	return s.Journal.ListOrders(ctx, p)
}

func (s *MarketService) Cooldowns() []cooldown.Block {
	if s.Cooldown == nil {
		return []cooldown.Block{}
	}
	return s.Cooldown.ActiveBlocks()
}

// Unblock lifts a cooldown by hand. It reports false when the symbol was not blocked.
func (s *MarketService) Unblock(ctx context.Context, symbol, reason string) (bool, error) {
	if s.Cooldown == nil {
		return false, nil
	}
	ok, err := s.Cooldown.ManualUnblock(ctx, symbol, reason)
	if err != nil {
		s.notify(ctx, notify.EventPersistenceError, symbol, "cooldown write failed: "+err.Error())
		return ok, err
	}
	s.Metrics.SetCooldowns(s.Market, s.Cooldown.Count())
	return ok, nil
}

// Shutdown stops order monitoring, optionally cancelling what is still open.
func (s *MarketService) Shutdown(cancelPending bool) {
	if s.Orders == nil {
		return
	}
	s.Orders.Shutdown(cancelPending)
	s.Orders.Wait()
}

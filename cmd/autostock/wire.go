package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autostock/internal/auth"
	"autostock/internal/broker"
	"autostock/internal/broker/paper"
	"autostock/internal/cache"
	"autostock/internal/client/alpaca"
	"autostock/internal/client/kis"
	"autostock/internal/config"
	"autostock/internal/cooldown"
	"autostock/internal/credential"
	"autostock/internal/errs"
	"autostock/internal/logger"
	"autostock/internal/metrics"
	"autostock/internal/notify"
	"autostock/internal/order"
	"autostock/internal/repository"
	"autostock/internal/service"
	"autostock/internal/session"
	"autostock/internal/storage"
	"autostock/internal/strategy"
)

// venue is a broker connection that serves both quotes and the account.
type venue interface {
	broker.QuoteSource
	broker.Account
}

type shared struct {
	cfg      config.Config
	logger   *zap.Logger
	store    storage.Store
	quotes   cache.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	journal  repository.OrderJournal
}

func buildVenue(id string, mc config.MarketConfig, sh shared, log *zap.Logger) (venue, service.CredentialHealth, error) {
	switch mc.Broker {
	case "paper":
		secret := mc.Paper.TokenSecret
		if secret == "" {
			secret = uuid.NewString()
		}
		issuer := paper.Issuer{Market: id, JWT: auth.JWT{
			Secret:   []byte(secret),
			Issuer:   "autostock-paper",
			TokenTTL: mc.Paper.TokenTTL,
		}}
		mgr := credential.NewManager(id, issuer, sh.store, mc.Credential.RefreshThreshold, mc.Credential.ReissueWindow, log)
		return paper.New(id, mc.Paper), mgr, nil
	case "kis":
		client, err := kis.NewClient(nil, mc.KIS)
		if err != nil {
			return nil, nil, err
		}
		mgr := credential.NewManager(id, kis.Issuer{Client: client}, sh.store, mc.Credential.RefreshThreshold, mc.Credential.ReissueWindow, log)
		client.Tokens = mgr
		return client, mgr, nil
	case "alpaca":
		return alpaca.New(mc.Alpaca), credential.Static{}, nil
	default:
		return nil, nil, fmt.Errorf("broker %q: %w", mc.Broker, errs.ErrConfig)
	}
}

// buildMarket wires one market. State stores are loaded here; a failed load
// keeps the market running with buys disabled.
func buildMarket(ctx context.Context, id string, mc config.MarketConfig, sh shared) (*service.MarketService, error) {
	log := logger.ForMarket(sh.logger, id)

	clock, err := session.New(id, mc.Session)
	if err != nil {
		return nil, err
	}
	filter, err := strategy.NewFilterSpec(mc.Strategy)
	if err != nil {
		return nil, err
	}
	v, cred, err := buildVenue(id, mc, sh, log)
	if err != nil {
		return nil, err
	}

	if mgr, ok := cred.(*credential.Manager); ok {
		if err := mgr.Load(ctx); err != nil {
			log.Error("credential cache unreadable", zap.Error(err))
		}
	}
	cd := cooldown.New(id, sh.store, mc.Cooldown.Days, clock.Location(), log)
	if err := cd.Load(ctx); err != nil {
		log.Error("cooldown table unreadable", zap.Error(err))
	}
	floors := strategy.NewFloors(id, sh.store, log)
	if err := floors.Load(ctx); err != nil {
		log.Error("sell floors unreadable", zap.Error(err))
	}

	stats := &strategy.Stats{}
	md := broker.QuoteMarketData{Source: &broker.CachedQuotes{
		Market: id,
		Source: v,
		Store:  sh.quotes,
		TTL:    sh.cfg.Cache.QuoteTTL,
		Logger: log,
	}}
	engine := &strategy.Engine{
		Market:     id,
		Filter:     filter,
		Params:     strategy.ParamsFromConfig(mc.Strategy),
		MarketData: md,
		Account:    v,
		Cooldown:   cd,
		Floors:     floors,
		Logger:     log,
		Stats:      stats,
	}
	tracker := order.New(id, v, mc.Order, log)

	svc := &service.MarketService{
		Market:      id,
		Clock:       clock,
		Credential:  cred,
		Engine:      engine,
		Orders:      tracker,
		Cooldown:    cd,
		Floors:      floors,
		Stats:       stats,
		Notifier:    sh.notifier,
		Metrics:     sh.metrics,
		Journal:     sh.journal,
		Logger:      log,
		DryRun:      sh.cfg.App.DryRun,
		OrderMaxAge: mc.Order.MaxAge,
	}
	tracker.OnTerminal = svc.HandleTerminal

	if err := svc.Status(ctx).PersistenceError; err != "" {
		_ = sh.notifier.Notify(ctx, notify.Event{Type: notify.EventPersistenceError, Market: id, Message: err, At: time.Now()})
	}
	log.Info("market wired",
		zap.String("broker", mc.Broker),
		zap.Bool("grouped_filter", filter.Grouped()),
		zap.Bool("dry_run", sh.cfg.App.DryRun),
	)
	return svc, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"autostock/internal/models"
)

var ErrUnknownMarket = errors.New("unknown market")

// Registry maps market IDs to their services. It is built once at startup
// and read-only afterwards.
type Registry struct {
	services map[string]*MarketService
}

func NewRegistry(svcs ...*MarketService) *Registry {
	r := &Registry{services: make(map[string]*MarketService, len(svcs))}
	for _, s := range svcs {
		r.services[s.Market] = s
	}
	return r
}

func (r *Registry) Get(market string) (*MarketService, error) {
	s, ok := r.services[market]
	if !ok {
		return nil, fmt.Errorf("%q: %w", market, ErrUnknownMarket)
	}
	return s, nil
}

func (r *Registry) Markets() []string {
	out := make([]string, 0, len(r.services))
	for id := range r.services {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) RunCycle(ctx context.Context, market string, dir models.Direction) (models.CycleResult, error) {
	s, err := r.Get(market)
	if err != nil {
		return models.CycleResult{Market: market, Direction: dir, Message: err.Error()}, err
	}
	return s.RunCycle(ctx, dir)
}

func (r *Registry) Status(ctx context.Context, market string) (Status, error) {
	s, err := r.Get(market)
	if err != nil {
		return Status{}, err
	}
	return s.Status(ctx), nil
}

// Statuses returns every market's status in market order.
func (r *Registry) Statuses(ctx context.Context) []Status {
	out := make([]Status, 0, len(r.services))
	for _, id := range r.Markets() {
		out = append(out, r.services[id].Status(ctx))
	}
	return out
}

package strategy

import "sync/atomic"

type Stats struct {
	buyAttempts   atomic.Int64
	buySuccesses  atomic.Int64
	sellAttempts  atomic.Int64
	sellSuccesses atomic.Int64
	filterBlocks  atomic.Int64
}

type StatsSnapshot struct {
	BuyAttempts     int64   `json:"buy_attempts"`
	BuySuccesses    int64   `json:"buy_successes"`
	SellAttempts    int64   `json:"sell_attempts"`
	SellSuccesses   int64   `json:"sell_successes"`
	FilterBlocks    int64   `json:"filter_blocks"`
	BuySuccessRate  float64 `json:"buy_success_rate"`
	SellSuccessRate float64 `json:"sell_success_rate"`
}

func (s *Stats) BuySucceeded()  { s.buySuccesses.Add(1) }
func (s *Stats) SellSucceeded() { s.sellSuccesses.Add(1) }

func (s *Stats) Snapshot() StatsSnapshot {
	out := StatsSnapshot{
		BuyAttempts:   s.buyAttempts.Load(),
		BuySuccesses:  s.buySuccesses.Load(),
		SellAttempts:  s.sellAttempts.Load(),
		SellSuccesses: s.sellSuccesses.Load(),
		FilterBlocks:  s.filterBlocks.Load(),
	}
	if out.BuyAttempts > 0 {
		out.BuySuccessRate = float64(out.BuySuccesses) / float64(out.BuyAttempts) * 100
	}
	if out.SellAttempts > 0 {
		out.SellSuccessRate = float64(out.SellSuccesses) / float64(out.SellAttempts) * 100
	}
	return out
}

func (s *Stats) Reset() {
	s.buyAttempts.Store(0)
	s.buySuccesses.Store(0)
	s.sellAttempts.Store(0)
	s.sellSuccesses.Store(0)
	s.filterBlocks.Store(0)
}

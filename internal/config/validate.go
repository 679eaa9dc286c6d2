package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"autostock/internal/errs"
)

var knownBrokers = map[string]bool{"paper": true, "kis": true, "alpaca": true}

// EnabledMarkets returns the IDs of enabled markets in stable order.
func (c Config) EnabledMarkets() []string {
	out := make([]string, 0, len(c.Markets))
	for id, m := range c.Markets {
		if m.Enabled {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks every enabled market. All failures wrap errs.ErrConfig.
func (c Config) Validate() error {
	markets := c.EnabledMarkets()
	if len(markets) == 0 {
		return fmt.Errorf("no enabled markets: %w", errs.ErrConfig)
	}
	switch c.Storage.Driver {
	case "file", "db":
	default:
		return fmt.Errorf("storage.driver %q: %w", c.Storage.Driver, errs.ErrConfig)
	}
	if c.Storage.Driver == "db" && strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("storage.driver=db requires db.dsn: %w", errs.ErrConfig)
	}
	for _, id := range markets {
		if err := c.Markets[id].validate(); err != nil {
			return fmt.Errorf("markets.%s: %w", id, err)
		}
	}
	return nil
}

func (m MarketConfig) validate() error {
	if !knownBrokers[m.Broker] {
		return fmt.Errorf("unknown broker %q: %w", m.Broker, errs.ErrConfig)
	}
	if _, err := time.LoadLocation(m.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone %q: %w", m.Session.Timezone, errs.ErrConfig)
	}
	open, err := ParseClock(m.Session.Open)
	if err != nil {
		return err
	}
	closeAt, err := ParseClock(m.Session.Close)
	if err != nil {
		return err
	}
	if closeAt <= open {
		return fmt.Errorf("session close %s not after open %s: %w", m.Session.Close, m.Session.Open, errs.ErrConfig)
	}
	if _, err := ParseWeekdays(m.Session.Weekdays); err != nil {
		return err
	}
	s := m.Strategy
	if s.ProfitThreshold <= 0 {
		return fmt.Errorf("strategy.profit_threshold must be > 0: %w", errs.ErrConfig)
	}
	if s.StopLossThreshold >= 0 {
		return fmt.Errorf("strategy.stop_loss_threshold must be < 0: %w", errs.ErrConfig)
	}
	if s.TopN <= 0 || s.MaxPositions <= 0 || s.MaxShares <= 0 {
		return fmt.Errorf("strategy.top_n, max_positions and max_shares must be > 0: %w", errs.ErrConfig)
	}
	if len(s.Groups) > 0 {
		if len(s.FilterSymbols) > 0 {
			return fmt.Errorf("strategy: filter_symbols and groups are exclusive: %w", errs.ErrConfig)
		}
		for key, g := range s.Groups {
			if len(g.Symbols) == 0 || len(g.WatchList) == 0 {
				return fmt.Errorf("strategy.groups.%s needs symbols and watch_list: %w", key, errs.ErrConfig)
			}
		}
	} else {
		if len(s.FilterSymbols) == 0 {
			return fmt.Errorf("strategy: filter_symbols or groups required: %w", errs.ErrConfig)
		}
		if len(s.WatchList) == 0 {
			return fmt.Errorf("strategy.watch_list required: %w", errs.ErrConfig)
		}
	}
	if m.Cooldown.Days <= 0 {
		return fmt.Errorf("cooldown.days must be > 0: %w", errs.ErrConfig)
	}
	if m.Order.Timeout <= 0 || m.Order.PollInterval <= 0 {
		return fmt.Errorf("order.timeout and order.poll_interval must be > 0: %w", errs.ErrConfig)
	}
	if m.Credential.RefreshThreshold <= 0 || m.Credential.ReissueWindow <= 0 {
		return fmt.Errorf("credential thresholds must be > 0: %w", errs.ErrConfig)
	}
	switch m.Broker {
	case "kis":
		if m.KIS.AppKey == "" || m.KIS.AppSecret == "" || m.KIS.Account == "" {
			return fmt.Errorf("kis.app_key, app_secret and account required: %w", errs.ErrConfig)
		}
	case "alpaca":
		if m.Alpaca.APIKey == "" || m.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca.api_key and api_secret required: %w", errs.ErrConfig)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, errs.ErrConfig)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays maps three-letter day names to a weekday set.
func ParseWeekdays(names []string) (map[time.Weekday]bool, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("session.weekdays empty: %w", errs.ErrConfig)
	}
	out := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("weekday %q: %w", n, errs.ErrConfig)
		}
		out[d] = true
	}
	return out, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/errs"
)

const sampleYAML = `
markets:
  kr:
    strategy:
      filter_symbols: ["005930", "000660"]
      watch_list: ["035420", "035720"]
  us:
    strategy:
      groups:
        semis:
          name: Semiconductors
          symbols: ["NVDA", "AMD"]
          watch_list: ["SOXL"]
        bigtech:
          name: Big Tech
          symbols: ["AAPL"]
          watch_list: ["QQQ", "SOXL"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesMarketDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML), false)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	kr := cfg.Markets[MarketKR]
	assert.Equal(t, "Asia/Seoul", kr.Session.Timezone)
	assert.Equal(t, "09:00", kr.Session.Open)
	assert.Equal(t, 50, kr.Cooldown.Days)
	assert.Equal(t, -0.10, kr.Strategy.StopLossThreshold)
	assert.Equal(t, 20*time.Minute, kr.Order.Timeout)
	assert.Equal(t, 5*time.Hour, kr.Credential.RefreshThreshold)
	assert.Equal(t, "@every 30m", kr.Schedule.Sell)

	us := cfg.Markets[MarketUS]
	assert.Equal(t, "America/New_York", us.Session.Timezone)
	assert.Equal(t, 100, us.Cooldown.Days)
	assert.Equal(t, -0.15, us.Strategy.StopLossThreshold)
	assert.Len(t, us.Strategy.Groups, 2)
	assert.Equal(t, []string{"NVDA", "AMD"}, us.Strategy.Groups["semis"].Symbols)

	assert.Equal(t, []string{MarketKR, MarketUS}, cfg.EnabledMarkets())
}

func TestValidate_RejectsMissingFilter(t *testing.T) {
	cfg, err := Load(writeConfig(t, "markets:\n  us:\n    enabled: false\n"), false)
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestValidate_RejectsUnknownBroker(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML+"    broker: ib\n"), false)
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestParseClockAndWeekdays(t *testing.T) {
	d, err := ParseClock("15:30")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Hour+30*time.Minute, d)

	_, err = ParseClock("25:00")
	assert.ErrorIs(t, err, errs.ErrConfig)

	days, err := ParseWeekdays([]string{"Mon", "friday"})
	require.NoError(t, err)
	assert.True(t, days[time.Monday])
	assert.True(t, days[time.Friday])
	assert.False(t, days[time.Sunday])

	_, err = ParseWeekdays([]string{"xyz"})
	assert.ErrorIs(t, err, errs.ErrConfig)
}

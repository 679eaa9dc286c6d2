package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/models"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveCycle("kr", models.DirectionBuy, "executed", time.Second)
	m.ObserveCycle("kr", models.DirectionBuy, "executed", time.Second)
	m.IntentPlanned("kr", models.Intent{Side: models.SideSell, Reason: models.ReasonStopLoss})
	m.OrderFinished(models.PendingOrder{Market: "us", Side: models.SideBuy, Status: models.OrderTimedOut})
	m.SetPending("us", 3)
	m.SetSessionOpen("us", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("kr", "buy", "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.intents.WithLabelValues("kr", "sell", "stop_loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("us", "buy", "timed_out")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending.WithLabelValues("us")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionOpen.WithLabelValues("us")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetCooldowns("kr", 2)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `autostock_cooldown_symbols{market="kr"} 2`))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.SetPending("kr", 1)
	m.ObserveCycle("kr", models.DirectionSell, "skipped", 0)
	assert.NotNil(t, m.Handler())
}

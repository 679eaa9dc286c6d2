package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/models"
)

func symbols(cs []models.WatchCandidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Symbol
	}
	return out
}

func TestTopDeclining(t *testing.T) {
	cands := []models.WatchCandidate{
		{Symbol: "A", DeclineRate: d("0.05")},
		{Symbol: "B", DeclineRate: d("-0.02")},
		{Symbol: "C", DeclineRate: d("0.10")},
	}
	assert.Equal(t, []string{"C", "A"}, symbols(TopDeclining(cands, 2)))
	assert.Equal(t, []string{"C", "A", "B"}, symbols(TopDeclining(cands, 10)))
	// input untouched
	assert.Equal(t, "A", cands[0].Symbol)
}

func TestCandidates_ComputesDeclineRate(t *testing.T) {
	md := fakeMarket{
		"A": {"95", "100"},
		"B": {"102", "100"},
		"Z": {"5", "0"},
	}
	got, err := Candidates(context.Background(), md, []string{"A", "B", "MISSING", "Z"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].DeclineRate.Equal(d("0.05")))
	assert.True(t, got[1].DeclineRate.Equal(d("-0.02")))
}

func TestDeclineRate_ZeroPrev(t *testing.T) {
	assert.True(t, DeclineRate(d("1"), decimal.Zero).IsZero())
}

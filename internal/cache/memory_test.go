package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/config"
)

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.Now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "quote:kr:005930", []byte(`71000`), time.Minute))
	v, ok, err := s.Get(ctx, "quote:kr:005930")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "71000", string(v))

	now = now.Add(time.Minute)
	_, ok, err = s.Get(ctx, "quote:kr:005930")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_NoExpiryAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)

	s, err := New(context.Background(), config.CacheConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

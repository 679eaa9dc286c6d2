package cronrunner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunner_RunsNamedJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(zap.NewNop(), ctx)
	var hits int32
	_, err := r.Add("tick", "@every 1s", func(ctx context.Context) {
		atomic.AddInt32(&hits, 1)
	})
	require.NoError(t, err)

	next := r.NextRuns()
	require.Contains(t, next, "tick")

	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&hits) > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestRunner_RejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Add("bad", "not a spec", func(context.Context) {})
	assert.Error(t, err)
}

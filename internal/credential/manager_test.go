package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/errs"
	"autostock/internal/storage"
)

type fakeIssuer struct {
	calls int
	ttl   time.Duration
	now   func() time.Time
	err   error
}

func (f *fakeIssuer) Issue(ctx context.Context) (string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return fmt.Sprintf("tok-%d", f.calls), f.now().Add(f.ttl), nil
}

type testEnv struct {
	now    time.Time
	issuer *fakeIssuer
	store  *storage.FileStore
	mgr    *Manager
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	env.issuer = &fakeIssuer{ttl: 24 * time.Hour, now: func() time.Time { return env.now }}
	env.store = storage.NewFileStore(t.TempDir())
	env.mgr = NewManager("kr", env.issuer, env.store, 5*time.Hour, 24*time.Hour, nil)
	env.mgr.Now = func() time.Time { return env.now }
	require.NoError(t, env.mgr.Load(context.Background()))
	return env
}

func TestGetValidToken_IssuesOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	tok, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)

	env.now = env.now.Add(10 * time.Hour)
	tok, err = env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)
	assert.Equal(t, 1, env.issuer.calls)
}

func TestCanReissue_WindowAndThreshold(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	issued := env.now
	_, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)

	// inside 24h with more than 5h left: refused
	env.now = issued.Add(18 * time.Hour)
	assert.False(t, env.mgr.CanReissue(ctx, false))

	// remaining lifetime exactly at the threshold: allowed
	env.now = issued.Add(19 * time.Hour)
	assert.True(t, env.mgr.CanReissue(ctx, false))

	// window elapsed with a token that somehow still has long life
	env.issuer.ttl = 72 * time.Hour
	_, err = env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)
	reissued := env.now
	env.now = reissued.Add(23 * time.Hour)
	assert.False(t, env.mgr.CanReissue(ctx, false))
	env.now = reissued.Add(24 * time.Hour)
	assert.True(t, env.mgr.CanReissue(ctx, false))
}

func TestCanReissue_MissingTokenNeedsOverride(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	_, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)

	// token file lost, issuance timestamp kept
	require.NoError(t, env.store.Delete(ctx, "credential/kr/token"))
	require.NoError(t, env.mgr.Load(ctx))
	env.now = env.now.Add(time.Hour)

	assert.False(t, env.mgr.CanReissue(ctx, false))
	_, err = env.mgr.GetValidToken(ctx, false)
	assert.ErrorIs(t, err, errs.ErrAuth)

	assert.True(t, env.mgr.CanReissue(ctx, true))
	_, err = env.store.Load(ctx, "credential/kr/issued_at")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	tok, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.Value)
}

func TestGetValidToken_ExpiredAllowsReissue(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.issuer.ttl = 2 * time.Hour
	_, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)

	env.now = env.now.Add(3 * time.Hour)
	assert.Equal(t, StateExpired, env.mgr.Health().State)

	tok, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.Value)
}

func TestGetValidToken_ForceRefreshRespectsWindow(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	_, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)

	env.now = env.now.Add(time.Hour)
	tok, err := env.mgr.GetValidToken(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)
	assert.Equal(t, 1, env.issuer.calls)
}

func TestInvalidate_ClearsBoth(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	_, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)

	require.NoError(t, env.mgr.Invalidate(ctx))
	assert.Equal(t, StateMissing, env.mgr.Health().State)
	// nothing blocks the next issuance
	assert.True(t, env.mgr.CanReissue(ctx, false))

	reloaded := NewManager("kr", env.issuer, env.store, 5*time.Hour, 24*time.Hour, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, StateMissing, reloaded.Health().State)
}

func TestGetValidToken_IssuerFailureDisables(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.issuer.err = errors.New("EGW00133")

	_, err := env.mgr.GetValidToken(ctx, false)
	assert.ErrorIs(t, err, errs.ErrAuth)
	h := env.mgr.Health()
	assert.Equal(t, StateDisabled, h.State)
	assert.Contains(t, h.LastError, "EGW00133")
}

func TestLoad_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	_, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)

	other := NewManager("kr", env.issuer, env.store, 5*time.Hour, 24*time.Hour, nil)
	other.Now = env.mgr.Now
	require.NoError(t, other.Load(ctx))
	tok, err := other.GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)
	assert.Equal(t, 1, env.issuer.calls)
	assert.Equal(t, StateValid, other.Health().State)
}

func TestStatic(t *testing.T) {
	assert.Equal(t, StateStatic, Static{}.Health().State)
}

func TestInvalidate_RecoversFromUnreadableCache(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	dir := filepath.Join(env.store.Dir, "credential", "kr")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"token.json", "token.json.bak"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{not json"), 0o644))
	}

	assert.ErrorIs(t, env.mgr.Load(ctx), errs.ErrPersistence)
	assert.False(t, env.mgr.CanReissue(ctx, false))
	assert.Equal(t, StateDisabled, env.mgr.Health().State)

	require.NoError(t, env.mgr.Invalidate(ctx))
	assert.True(t, env.mgr.CanReissue(ctx, false))
	tok, err := env.mgr.GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)
}

func TestInvalidate_ClearsIssuerFailure(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.issuer.err = errors.New("EGW00133")
	_, err := env.mgr.GetValidToken(ctx, false)
	require.Error(t, err)
	require.Equal(t, StateDisabled, env.mgr.Health().State)

	require.NoError(t, env.mgr.Invalidate(ctx))
	assert.Equal(t, StateMissing, env.mgr.Health().State)
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/errs"
)

func TestFileStore_SaveKeepsPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)

	_, err := s.Load(ctx, "cooldown/kr")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "cooldown/kr", []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, "cooldown/kr", []byte(`{"v":2}`)))

	got, err := s.Load(ctx, "cooldown/kr")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))

	bak, err := os.ReadFile(filepath.Join(dir, "cooldown", "kr.json.bak"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(bak))

	matches, _ := filepath.Glob(filepath.Join(dir, "cooldown", "*.tmp-*"))
	assert.Empty(t, matches)
}

func TestFileStore_LoadFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)

	require.NoError(t, s.Save(ctx, "state", []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, "state", []byte(`{"v":2}`)))

	// torn write of the primary
	primary := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(primary, []byte(`{"v":`), 0o600))

	got, err := s.Load(ctx, "state")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))

	restored, err := os.ReadFile(primary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(restored))
}

func TestFileStore_CorruptPrimaryDoesNotOverwriteBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)

	require.NoError(t, s.Save(ctx, "state", []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, "state", []byte(`{"v":2}`)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("garbage"), 0o600))

	require.NoError(t, s.Save(ctx, "state", []byte(`{"v":3}`)))
	bak, err := os.ReadFile(filepath.Join(dir, "state.json.bak"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(bak))
}

func TestFileStore_BothUnreadable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json.bak"), []byte("y"), 0o600))

	_, err := s.Load(ctx, "state")
	assert.ErrorIs(t, err, errs.ErrPersistence)
}

func TestFileStore_BackupRestoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	assert.ErrorIs(t, s.Backup(ctx, "k"), ErrNotFound)
	assert.ErrorIs(t, s.Restore(ctx, "k"), ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte(`"a"`)))
	require.NoError(t, s.Backup(ctx, "k"))
	require.NoError(t, s.Save(ctx, "k", []byte(`"b"`)))
	require.NoError(t, s.Save(ctx, "k", []byte(`"c"`)))
	require.NoError(t, s.Restore(ctx, "k"))

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"b"`, string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())
	for _, key := range []string{"", "../x", "/abs", "a//b"} {
		err := s.Save(context.Background(), key, []byte(`1`))
		assert.ErrorIs(t, err, errs.ErrPersistence, key)
	}
}

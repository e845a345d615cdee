package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mobiles", ".lock")

	l, err := AcquireLock(path, time.Hour, "run-1")
	require.NoError(t, err)

	_, err = AcquireLock(path, time.Hour, "run-2")
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	l, err = AcquireLock(path, time.Hour, "run-3")
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestLockStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	require.NoError(t, os.WriteFile(path, []byte(`{"pid":1}`), 0644))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err := AcquireLock(path, 0, "run-1")
	require.ErrorIs(t, err, ErrLocked)

	l, err := AcquireLock(path, 2*time.Hour, "run-1")
	require.NoError(t, err)
	require.Contains(t, readFile(t, path), `"run_id":"run-1"`)
	require.NoError(t, l.Release())
}

func TestLockRefreshKeepsItFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	l, err := AcquireLock(path, time.Hour, "run-1")
	require.NoError(t, err)
	defer l.Release()

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	require.NoError(t, l.Refresh())

	_, err = AcquireLock(path, time.Hour, "run-2")
	require.ErrorIs(t, err, ErrLocked)
}

func TestLockKeepAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	l, err := AcquireLock(path, time.Hour, "run-1")
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	l.KeepAlive(10 * time.Millisecond)

	require.Eventually(t, func() bool {
		fi, err := os.Stat(path)
		return err == nil && time.Since(fi.ModTime()) < time.Minute
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

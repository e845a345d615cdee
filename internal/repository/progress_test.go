package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFileProgressMissingFile(t *testing.T) {
	p := NewFileProgress(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, p.Load(context.Background()))
	require.Equal(t, 0, p.Len())
}

func TestFileProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mobiles", "mobiles_progress.json")

	p := NewFileProgress(path)
	require.NoError(t, p.Load(ctx))
	p.MarkDone("/mobiles/b")
	p.MarkDone("/mobiles/a")
	p.MarkDone("/mobiles/a")
	require.NoError(t, p.Persist(ctx))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `["/mobiles/a", "/mobiles/b"]`, string(b))

	reloaded := NewFileProgress(path)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, 2, reloaded.Len())
	require.True(t, reloaded.Contains("/mobiles/a"))
	require.False(t, reloaded.Contains("/mobiles/c"))

	// no temp files are left next to the progress file
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileProgressForget(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.json")
	p := NewFileProgress(path)
	p.MarkDone("/mobiles/c")
	p.MarkDone("/mobiles/a")
	p.MarkDone("/mobiles/b")
	p.Forget("/mobiles/b")
	p.Forget("/mobiles/missing")
	require.Equal(t, []string{"/mobiles/a", "/mobiles/c"}, p.Done())
	require.NoError(t, p.Persist(ctx))

	reloaded := NewFileProgress(path)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, []string{"/mobiles/a", "/mobiles/c"}, reloaded.Done())
}

func TestFileProgressCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte(`["/mobiles/a"`), 0644))

	p := NewFileProgress(path)
	require.NoError(t, p.Load(context.Background()))
	require.Equal(t, 0, p.Len())
}

func TestFileProgressReset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.json")
	p := NewFileProgress(path)
	p.MarkDone("/mobiles/a")
	require.NoError(t, p.Persist(ctx))

	require.NoError(t, p.Reset(ctx))
	require.Equal(t, 0, p.Len())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// resetting twice is fine
	require.NoError(t, p.Reset(ctx))
}

func TestRedisProgress(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewRedisProgress(client, "mobiles")
	require.Equal(t, "specscrape:mobiles:progress", p.Key)
	require.NoError(t, p.Load(ctx))
	require.Equal(t, 0, p.Len())

	p.MarkDone("/mobiles/a")
	p.MarkDone("/mobiles/b")
	require.NoError(t, p.Persist(ctx))
	require.NoError(t, p.Persist(ctx))

	members, err := mr.Members(p.Key)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/mobiles/a", "/mobiles/b"}, members)

	reloaded := NewRedisProgress(client, "mobiles")
	require.NoError(t, reloaded.Load(ctx))
	require.True(t, reloaded.Contains("/mobiles/b"))
	require.Equal(t, 2, reloaded.Len())

	require.NoError(t, reloaded.Reset(ctx))
	require.False(t, mr.Exists(p.Key))
	require.Equal(t, 0, reloaded.Len())
}

func TestRedisProgressForget(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewRedisProgress(client, "mobiles")
	require.NoError(t, p.Load(ctx))
	p.MarkDone("/mobiles/a")
	p.MarkDone("/mobiles/b")
	require.NoError(t, p.Persist(ctx))

	p.Forget("/mobiles/a")
	p.MarkDone("/mobiles/c")
	// marked and forgotten before persisting never reaches redis
	p.MarkDone("/mobiles/d")
	p.Forget("/mobiles/d")
	require.Equal(t, []string{"/mobiles/b", "/mobiles/c"}, p.Done())
	require.NoError(t, p.Persist(ctx))

	members, err := mr.Members(p.Key)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/mobiles/b", "/mobiles/c"}, members)
}

func TestRedisProgressPersistFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	p := NewRedisProgress(client, "mobiles")
	require.NoError(t, p.Load(ctx))
	p.MarkDone("/mobiles/a")
	mr.Close()

	require.ErrorIs(t, p.Persist(ctx), ErrPersistence)
}

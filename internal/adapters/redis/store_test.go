package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmvf/pergola/internal/adapters/redis"
	"github.com/lucasmvf/pergola/pkg/domain"
)

func testStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	run := domain.NewRun("run-1", "release-notes", "gather", map[string]any{"topic": "git"})
	run.Status = domain.StatusRunning
	require.NoError(t, store.Save(ctx, run))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "release-notes", loaded.Workflow)
	assert.Equal(t, "gather", loaded.CurrentState)
	assert.Equal(t, domain.StatusRunning, loaded.Status)
	assert.Equal(t, "git", loaded.Context["topic"])
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestRedisStoreDeleteAndList(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewRun("a", "wf", "s", nil)))
	require.NoError(t, store.Save(ctx, domain.NewRun("b", "wf", "s", nil)))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "a"))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestRedisStoreTTLExpiration(t *testing.T) {
	store, mr := testStore(t, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewRun("run-ttl", "wf", "s", nil)))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "run-ttl")

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "run-ttl")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	// The index prune keys off time.Now(), so wait past the TTL window
	// before checking lazy cleanup.
	time.Sleep(1200 * time.Millisecond)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStorePrefix(t *testing.T) {
	store, mr := testStore(t, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewRun("my-run", "wf", "s", nil)))

	assert.True(t, mr.Exists("custom:app:my-run"))
	assert.True(t, mr.Exists("custom:app:index"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "my-run")
}

package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newStore(t *testing.T) (*kv.Redis[record], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.NewRedis[record](client, "test:"), mr
}

func TestPutGet(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", &record{Name: "a", Count: 1}, time.Minute))
	require.True(t, mr.Exists("test:a"))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, &record{Name: "a", Count: 1}, got)
}

func TestTakeRemoves(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a", &record{Name: "a"}, time.Minute))

	got, err := store.Take(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "a", got.Name)

	_, err = store.Take(ctx, "a")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a", &record{Name: "a"}, time.Second))

	mr.FastForward(2 * time.Second)

	_, err := store.Get(ctx, "a")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestDelete(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a", &record{Name: "a"}, 0))

	existed, err := store.Delete(ctx, "a")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestBackendFailure(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "a")
	require.ErrorIs(t, err, kv.ErrBackend)
}

func TestUpdateKeepsTTL(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a", &record{Name: "a"}, time.Minute))

	require.NoError(t, store.Update(ctx, "a", func(r *record) *record {
		r.Count = 7
		return r
	}))
	require.Equal(t, time.Minute, mr.TTL("test:a"))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 7, got.Count)

	require.NoError(t, store.Update(ctx, "a", func(*record) *record { return nil }))
	require.False(t, mr.Exists("test:a"))
	require.ErrorIs(t, store.Update(ctx, "a", func(r *record) *record { return r }), kv.ErrNotFound)
}

func TestUpdateAbortsWhenTakenConcurrently(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a", &record{Name: "a"}, time.Minute))

	calls := 0
	err := store.Update(ctx, "a", func(r *record) *record {
		calls++
		if calls == 1 {
			_, takeErr := store.Take(ctx, "a")
			require.NoError(t, takeErr)
		}
		r.Count++
		return r
	})
	require.ErrorIs(t, err, kv.ErrNotFound)
	require.Equal(t, 1, calls)
	require.False(t, mr.Exists("test:a"))
}

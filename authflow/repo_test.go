package authflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-gateway/authflow"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func repos(t *testing.T) map[string]authflow.Repo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]authflow.Repo{
		"memory": authflow.NewInMemoryRepo(),
		"redis":  authflow.NewRedisRepo(client, "test:"),
	}
}

func newFlow(state string) *authflow.LoginFlowState {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &authflow.LoginFlowState{
		State:        state,
		CodeVerifier: "verifier-" + state,
		RedirectURI:  "http://localhost:3000/auth/callback",
		CreatedAt:    now,
		ExpiresAt:    now.Add(300 * time.Second),
	}
}

func TestConsumeOnce(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Save(ctx, newFlow("s1")))

			got, err := repo.Consume(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, "verifier-s1", got.CodeVerifier)
			require.True(t, got.ExpiresAt.Equal(newFlow("s1").ExpiresAt))

			_, err = repo.Consume(ctx, "s1")
			require.ErrorIs(t, err, authflow.ErrFlowNotFound)
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := newFlow("s1")
			second := newFlow("s1")
			second.CodeVerifier = "replacement"

			require.NoError(t, repo.Save(ctx, first))
			require.NoError(t, repo.Save(ctx, second))

			got, err := repo.Consume(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, "replacement", got.CodeVerifier)
		})
	}
}

func TestUnknownAndEmptyState(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := repo.Consume(ctx, "missing")
			require.ErrorIs(t, err, authflow.ErrFlowNotFound)

			_, err = repo.Consume(ctx, "")
			require.ErrorIs(t, err, authflow.ErrEmptyState)
			require.ErrorIs(t, repo.Save(ctx, newFlow("")), authflow.ErrEmptyState)
		})
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Save(ctx, newFlow("race")))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := repo.Consume(ctx, "race"); err == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			require.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestSavedCopyIsIsolated(t *testing.T) {
	repo := authflow.NewInMemoryRepo()
	ctx := context.Background()
	flow := newFlow("s1")
	require.NoError(t, repo.Save(ctx, flow))

	flow.CodeVerifier = "mutated"

	got, err := repo.Consume(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "verifier-s1", got.CodeVerifier)
}

func TestPurgeExpired(t *testing.T) {
	repo := authflow.NewInMemoryRepo()
	ctx := context.Background()
	flow := newFlow("old")
	require.NoError(t, repo.Save(ctx, flow))
	require.NoError(t, repo.Save(ctx, newFlow("fresh")))

	removed := repo.PurgeExpired(flow.CreatedAt.Add(299 * time.Second))
	require.Equal(t, 0, removed)
	require.Equal(t, 2, repo.Len())

	removed = repo.PurgeExpired(flow.ExpiresAt)
	require.Equal(t, 2, removed)
	require.Equal(t, 0, repo.Len())
}

func TestExpired(t *testing.T) {
	flow := newFlow("s")
	require.False(t, flow.Expired(flow.CreatedAt))
	require.False(t, flow.Expired(flow.ExpiresAt.Add(-time.Nanosecond)))
	require.True(t, flow.Expired(flow.ExpiresAt))
	require.True(t, flow.Expired(flow.CreatedAt.Add(301*time.Second)))
}

func TestRedisKeyRetention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := authflow.NewRedisRepo(client, "test:")

	require.NoError(t, repo.Save(context.Background(), newFlow("s1")))
	require.Equal(t, 360*time.Second, mr.TTL("test:flow:s1"))
}

package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/redis/go-redis/v9"
)

// expiryGrace keeps a flow in Redis a little past ExpiresAt so that a late
// callback gets an expired-state error instead of an unknown-state one.
const expiryGrace = time.Minute

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores login flows in Redis. Consume is a single GETDEL.
type RedisRepo struct {
	flows *kv.Redis[LoginFlowState]
}

func NewRedisRepo(client redis.UniversalClient, prefix string) *RedisRepo {
	return &RedisRepo{flows: kv.NewRedis[LoginFlowState](client, prefix+"flow:")}
}

func (r *RedisRepo) Save(ctx context.Context, flow *LoginFlowState) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if flow.State == "" {
		return ErrEmptyState
	}
	return r.flows.Put(ctx, flow.State, flow, retention(flow.CreatedAt, flow.ExpiresAt))
}

func (r *RedisRepo) Consume(ctx context.Context, state string) (*LoginFlowState, error) {
	if state == "" {
		return nil, ErrEmptyState
	}
	flow, err := r.flows.Take(ctx, state)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrFlowNotFound
	}
	return flow, err
}

var _ CorpRepo = (*RedisCorpRepo)(nil)

type RedisCorpRepo struct {
	flows *kv.Redis[CorpFlowState]
}

func NewRedisCorpRepo(client redis.UniversalClient, prefix string) *RedisCorpRepo {
	return &RedisCorpRepo{flows: kv.NewRedis[CorpFlowState](client, prefix+"corpflow:")}
}

func (r *RedisCorpRepo) Save(ctx context.Context, flow *CorpFlowState) error {
	if flow == nil || flow.FlowID == "" {
		return errors.New("flow id cannot be empty")
	}
	return r.flows.Put(ctx, flow.FlowID, flow, retention(flow.CreatedAt, flow.ExpiresAt))
}

func (r *RedisCorpRepo) Get(ctx context.Context, flowID string) (*CorpFlowState, error) {
	flow, err := r.flows.Get(ctx, flowID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrFlowNotFound
	}
	return flow, err
}

func (r *RedisCorpRepo) Consume(ctx context.Context, flowID string) (*CorpFlowState, error) {
	flow, err := r.flows.Take(ctx, flowID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrFlowNotFound
	}
	return flow, err
}

func retention(createdAt, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(createdAt)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + expiryGrace
}

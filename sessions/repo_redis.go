package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("session store unavailable")

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores each session under its own key and indexes them with a
// per-user set.
type RedisRepo struct {
	redis   redis.UniversalClient
	prefix  string
	nowTime func() time.Time
}

func NewRedisRepo(client redis.UniversalClient, prefix string) *RedisRepo {
	return &RedisRepo{redis: client, prefix: prefix, nowTime: time.Now}
}

func (r *RedisRepo) key(sessionID string) string {
	return r.prefix + "sess:" + sessionID
}

func (r *RedisRepo) userKey(userID string) string {
	return r.prefix + "user:" + userID + ":sessions"
}

func (r *RedisRepo) Create(ctx context.Context, s NewSession) (UserSession, error) {
	if s.UserID == "" {
		return UserSession{}, errors.New("userID is required")
	}
	now := r.nowTime().UTC()
	session := UserSession{
		SessionID:        idPrefix + uuid.NewString(),
		UserID:           s.UserID,
		Realm:            s.Realm,
		Device:           orDefault(s.Device, DefaultDevice),
		IP:               orDefault(s.IP, DefaultIP),
		CreatedAt:        now,
		LastSeenAt:       now,
		RiskLevel:        s.RiskLevel,
		MFALevel:         s.MFALevel,
		TokenFingerprint: Fingerprint(s.Binding),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return UserSession{}, err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(session.SessionID), data, 0)
		pipe.SAdd(ctx, r.userKey(s.UserID), session.SessionID)
		return nil
	})
	if err != nil {
		return UserSession{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return session, nil
}

func (r *RedisRepo) GetByUserID(ctx context.Context, userID string) ([]UserSession, error) {
	out := []UserSession{}
	ids, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s UserSession
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ids[i], err)
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		_ = r.redis.SRem(ctx, r.userKey(userID), stale...).Err()
	}

	sortNewestFirst(out)
	return out, nil
}

func (r *RedisRepo) Revoke(ctx context.Context, userID, sessionID string) (bool, error) {
	member, err := r.redis.SIsMember(ctx, r.userKey(userID), sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !member {
		return false, nil
	}

	var deleted *redis.IntCmd
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.key(sessionID))
		pipe.SRem(ctx, r.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return deleted.Val() > 0, nil
}

func (r *RedisRepo) RevokeAll(ctx context.Context, userID string) (int, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}

	var deleted *redis.IntCmd
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

func (r *RedisRepo) Touch(ctx context.Context, userID, sessionID string, at time.Time) error {
	key := r.key(sessionID)
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var s UserSession
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if s.UserID != userID {
		return ErrSessionNotFound
	}
	if !at.After(s.LastSeenAt) {
		return nil
	}
	s.LastSeenAt = at.UTC()
	if data, err = json.Marshal(s); err != nil {
		return err
	}
	if err := r.redis.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

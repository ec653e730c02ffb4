// Package kv stores JSON encoded records in Redis under a key prefix.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 4

var (
	ErrNotFound = errors.New("kv: record not found")
	ErrBackend  = errors.New("kv: backend unavailable")
)

// Redis is a typed view over one key prefix.
type Redis[T any] struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis[T any](client redis.UniversalClient, prefix string) *Redis[T] {
	return &Redis[T]{client: client, prefix: prefix}
}

func (s *Redis[T]) Key(id string) string {
	return s.prefix + id
}

// Put stores v under id. A ttl of zero keeps the key until deleted.
func (s *Redis[T]) Put(ctx context.Context, id string, v *T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", id, err)
	}
	if err := s.client.Set(ctx, s.Key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *Redis[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := s.client.Get(ctx, s.Key(id)).Bytes()
	if err != nil {
		return nil, s.readError(err)
	}
	return decode[T](data)
}

// Take atomically reads and deletes id with GETDEL.
func (s *Redis[T]) Take(ctx context.Context, id string) (*T, error) {
	data, err := s.client.GetDel(ctx, s.Key(id)).Bytes()
	if err != nil {
		return nil, s.readError(err)
	}
	return decode[T](data)
}

// Delete removes id and reports whether it existed.
func (s *Redis[T]) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

// Update runs mutate under WATCH so a concurrent Take or Delete aborts the
// write instead of resurrecting the key.
func (s *Redis[T]) Update(ctx context.Context, id string, mutate func(v *T) *T) error {
	key := s.Key(id)
	for i := 0; i < maxUpdateRetries; i++ {
		var codecErr error
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			v, err := decode[T](data)
			if err != nil {
				codecErr = err
				return err
			}
			next := mutate(v)
			var encoded []byte
			if next != nil {
				if encoded, err = json.Marshal(next); err != nil {
					codecErr = fmt.Errorf("kv: encode %s: %w", id, err)
					return codecErr
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.SetArgs(ctx, key, encoded, redis.SetArgs{KeepTTL: true})
				return nil
			})
			return err
		}, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case codecErr != nil:
			return codecErr
		default:
			return s.readError(err)
		}
	}
	return fmt.Errorf("%w: update %s: too many concurrent writers", ErrBackend, id)
}

func (s *Redis[T]) readError(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("kv: decode: %w", err)
	}
	return &v, nil
}

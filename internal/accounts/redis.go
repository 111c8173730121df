package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix  = "account:"
	usernameKeyPrefix = "account:username:"

	maxUpdateRetries = 8
)

// RedisStore はアカウントを JSON として Redis に保存します。
// ユーザー名 → ID の索引キーを SETNX で確保して一意性を保ちます。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// OpenRedis は URL から Redis に接続します。
func OpenRedis(ctx context.Context, rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return NewRedisStore(rdb), nil
}

// Create はユーザー名の索引とレコードを 1 つの MULTI で書き込みます。
func (s *RedisStore) Create(ctx context.Context, account *Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return err
	}

	indexKey := usernameKey(account.Username)
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, indexKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrUsernameTaken
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, accountKey(account.ID), payload, 0)
				pipe.Set(ctx, indexKey, account.ID, 0)
				return nil
			})
			return err
		}, indexKey)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrUsernameTaken):
			return err
		case err != nil:
			return fmt.Errorf("redis error: %w", err)
		}
		return nil
	}
	return fmt.Errorf("account %s: too many concurrent updates", account.Username)
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (*Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *RedisStore) GetByUsername(ctx context.Context, username string) (*Account, error) {
	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RedisStore) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return s.updatePartial(ctx, id, func(account *Account) {
		account.PasswordHash = passwordHash
	})
}

func (s *RedisStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return s.updatePartial(ctx, id, func(account *Account) {
		at = at.UTC()
		account.LastLogin = &at
	})
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// updatePartial は WATCH による楽観ロックでレコードを書き換えます。
func (s *RedisStore) updatePartial(ctx context.Context, id string, mutate func(*Account)) error {
	key := accountKey(id)
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrNotFound
				}
				return err
			}
			var account Account
			if err := json.Unmarshal(data, &account); err != nil {
				return err
			}
			mutate(&account)
			payload, err := json.Marshal(&account)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("account %s: too many concurrent updates", id)
}

func accountKey(id string) string {
	return accountKeyPrefix + id
}

func usernameKey(username string) string {
	return usernameKeyPrefix + username
}

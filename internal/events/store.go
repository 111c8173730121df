package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activityKeyPrefix = "activity:"

	// DefaultMaxEntries はアカウントごとに保持する件数の上限です。
	DefaultMaxEntries = 100
)

// Store はアカウントごとの操作履歴を Redis のリストに保存します。
// 新しいものが先頭です。
type Store struct {
	rdb        *redis.Client
	ttl        time.Duration
	maxEntries int64
}

// NewStore は Store を作成します。ttl は最後の記録からの保持期間です。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb:        rdb,
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
	}
}

// Append は操作を履歴の先頭に追加し、上限と有効期限を適用します。
func (s *Store) Append(ctx context.Context, event Event) error {
	if event.AccountID == "" {
		return fmt.Errorf("event.AccountID is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := activityKey(event.AccountID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, s.maxEntries-1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

// Recent は新しい順に最大 limit 件を返します。
func (s *Store) Recent(ctx context.Context, accountID string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := s.rdb.LRange(ctx, activityKey(accountID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]Event, 0, len(items))
	for _, item := range items {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode activity: %w", err)
		}
		result = append(result, event)
	}
	return result, nil
}

func activityKey(accountID string) string {
	return activityKeyPrefix + accountID
}

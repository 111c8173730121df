package main

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/hx-accounts/internal/config"
	"github.com/yourusername/hx-accounts/internal/events"
	"github.com/yourusername/hx-accounts/internal/logging"
	"github.com/yourusername/hx-accounts/internal/users"
)

// eventsWiring はアクティビティ記録の配線です。
// QUEUE_REDIS_URL が未設定の場合はログ出力のみになります。
type eventsWiring struct {
	publisher events.Publisher
	manager   *events.Manager
	rdb       *redis.Client
	limit     int
}

func setupEvents(cfg *config.Config, logger logging.Logger) (*eventsWiring, error) {
	if cfg.QueueRedisURL == "" {
		return &eventsWiring{publisher: events.NewLogPublisher(logger)}, nil
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	retention := time.Duration(cfg.ActivityRetentionDays) * 24 * time.Hour
	store := events.NewStore(redisClient, retention)
	manager, err := events.NewManager(cfg.QueueRedisURL, store, logger)
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	return &eventsWiring{publisher: manager, manager: manager, rdb: redisClient, limit: cfg.ActivityLimit}, nil
}

func (a *eventsWiring) options() []users.Option {
	if a.manager == nil || a.limit <= 0 {
		return nil
	}
	return []users.Option{users.WithActivity(a.manager, a.limit)}
}

func (a *eventsWiring) start() {
	if a.manager != nil {
		a.manager.StartWorkers()
	}
}

func (a *eventsWiring) Shutdown(ctx context.Context) error {
	if a.manager == nil {
		return nil
	}
	err := a.manager.Shutdown(ctx)
	if cerr := a.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}

// storeKind はログ用に接続先 URL の種類だけを返します。
func storeKind(rawURL string) string {
	if i := strings.Index(rawURL, ":"); i > 0 {
		return rawURL[:i]
	}
	return "memory"
}

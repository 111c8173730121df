package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/hx-accounts/internal/logging"
)

const (
	TaskTypeEvent = "account:event"
	QueueName     = "activity"
)

// Manager は操作記録をキューに投入し、ワーカーで Store に保存します。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	log    logging.Logger
}

var (
	_ Publisher = (*Manager)(nil)
	_ Reader    = (*Manager)(nil)
)

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, log logging.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if log == nil {
		log = logging.Nop()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	serverCfg := asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			QueueName: 1,
		},
	}
	// zap を使っている場合は asynq のログも同じ出力先にまとめる
	if z, ok := log.(interface{ Sugar() *zap.SugaredLogger }); ok {
		serverCfg.Logger = z.Sugar().With("component", "asynq")
	}

	manager := &Manager{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, serverCfg),
		mux:    asynq.NewServeMux(),
		store:  store,
		log:    log.With("component", "events"),
	}
	manager.mux.HandleFunc(TaskTypeEvent, manager.handleEvent)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.log.Error(context.Background(), "asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Publish は操作をキューに投入します。
func (m *Manager) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event.Type is required")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeEvent, body, asynq.Queue(QueueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue %s: %w", event.Type, err)
	}
	return nil
}

// Recent は保存済みの操作履歴を返します。
func (m *Manager) Recent(ctx context.Context, accountID string, limit int) ([]Event, error) {
	return m.store.Recent(ctx, accountID, limit)
}

func (m *Manager) handleEvent(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	m.log.Info(ctx, "account event",
		"type", string(event.Type),
		"username", event.Username,
		"account_id", event.AccountID,
		"client", event.Client,
	)
	// 存在しないユーザー名でのログイン失敗などはアカウントに紐付かない
	if event.AccountID == "" {
		return nil
	}
	return m.store.Append(ctx, event)
}

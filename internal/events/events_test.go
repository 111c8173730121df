package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourusername/hx-accounts/internal/logging"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, 24*time.Hour), mr
}

func TestStoreAppendAndRecent(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, typ := range []Type{TypeRegistered, TypeLoggedIn, TypePasswordChanged} {
		require.NoError(t, store.Append(ctx, Event{
			ID:         fmt.Sprintf("e%d", i),
			Type:       typ,
			AccountID:  "acc-1",
			Username:   "alice",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := store.Recent(ctx, "acc-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypePasswordChanged, got[0].Type)
	assert.Equal(t, TypeLoggedIn, got[1].Type)
	assert.True(t, got[0].OccurredAt.Equal(base.Add(2*time.Minute)))

	assert.Equal(t, 24*time.Hour, mr.TTL(activityKey("acc-1")))

	none, err := store.Recent(ctx, "acc-2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreTrimsToMaxEntries(t *testing.T) {
	store, _ := newStore(t)
	store.maxEntries = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, Event{ID: fmt.Sprint(i), Type: TypeLoggedIn, AccountID: "acc-1"}))
	}

	got, err := store.Recent(ctx, "acc-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].ID)
}

func TestStoreRejectsAnonymousEvent(t *testing.T) {
	store, _ := newStore(t)
	assert.Error(t, store.Append(context.Background(), Event{Type: TypeLoginFailed}))
}

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis, *observer.ObservedLogs) {
	t.Helper()
	store, mr := newStore(t)
	core, logs := observer.New(zapcore.InfoLevel)
	m, err := NewManager("redis://"+mr.Addr(), store, logging.NewZapLogger(zap.New(core)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.client.Close() })
	return m, mr, logs
}

func TestManagerHandleEvent(t *testing.T) {
	m, _, logs := newManager(t)
	ctx := context.Background()

	payload, err := json.Marshal(Event{ID: "e1", Type: TypeLoggedIn, AccountID: "acc-1", Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, m.handleEvent(ctx, asynq.NewTask(TaskTypeEvent, payload)))

	got, err := m.Recent(ctx, "acc-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, 1, logs.FilterMessage("account event").Len())
}

func TestManagerHandleEventWithoutAccount(t *testing.T) {
	m, mr, _ := newManager(t)

	payload, err := json.Marshal(Event{Type: TypeLoginFailed, Username: "ghost"})
	require.NoError(t, err)
	require.NoError(t, m.handleEvent(context.Background(), asynq.NewTask(TaskTypeEvent, payload)))
	assert.Empty(t, mr.Keys())
}

func TestManagerHandleEventBadPayload(t *testing.T) {
	m, _, _ := newManager(t)

	err := m.handleEvent(context.Background(), asynq.NewTask(TaskTypeEvent, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestManagerPublishEnqueues(t *testing.T) {
	m, mr, _ := newManager(t)

	require.NoError(t, m.Publish(context.Background(), Event{Type: TypeRegistered, AccountID: "acc-1", Username: "alice"}))
	assert.True(t, mr.Exists("asynq:{"+QueueName+"}:pending"))

	assert.Error(t, m.Publish(context.Background(), Event{}))
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	store, _ := newStore(t)
	_, err := NewManager("not a url", store, nil)
	assert.Error(t, err)

	_, err = NewManager("redis://localhost:6379", nil, nil)
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewLogPublisher(logging.NewZapLogger(zap.New(core)))

	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeLoggedOut, Username: "alice"}))
	entries := logs.FilterMessage("account event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "logged_out", entries[0].ContextMap()["type"])
}

func TestClientFromUserAgent(t *testing.T) {
	assert.Equal(t, "", ClientFromUserAgent(""))

	firefox := "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0"
	assert.Equal(t, "Firefox/desktop on Windows", ClientFromUserAgent(firefox))

	bot := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	assert.Contains(t, ClientFromUserAgent(bot), "/bot")
}

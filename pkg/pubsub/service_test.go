package pubsub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypub/relay/pkg/cache"
	"github.com/relaypub/relay/pkg/observability"
	"github.com/relaypub/relay/pkg/storage"
	"github.com/relaypub/relay/pkg/storage/memory"
	"github.com/relaypub/relay/pkg/webhooks"
)

// recordingDispatcher captures fan-out invocations instead of delivering.
type recordingDispatcher struct {
	mu       sync.Mutex
	calls    int
	lastSubs []*storage.Subscriber
	lastPay  webhooks.Payload
	fail     map[int64]bool
}

func (d *recordingDispatcher) DeliverAll(ctx context.Context, subs []*storage.Subscriber, payload webhooks.Payload) []webhooks.DeliveryResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	d.lastSubs = subs
	d.lastPay = payload

	results := make([]webhooks.DeliveryResult, len(subs))
	for i, sub := range subs {
		results[i] = webhooks.DeliveryResult{SubscriberID: sub.ID, URL: sub.URL}
		if d.fail[sub.ID] {
			results[i].Err = errors.New("delivery failed")
		}
	}
	return results
}

type serviceFixture struct {
	service     *Service
	subscribers *memory.SubscriberStore
	messages    *memory.MessageStore
	cache       *memory.Cache
	dispatcher  *recordingDispatcher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		subscribers: memory.NewSubscriberStore(),
		messages:    memory.NewMessageStore(),
		cache:       memory.NewCache(),
		dispatcher:  &recordingDispatcher{},
	}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	f.service = NewService(f.subscribers, f.messages, f.cache, f.dispatcher, 30*time.Second, logger)
	return f
}

func TestService_Subscribe_Idempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.NotEmpty(t, first.Secret)

	second, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)

	// same identity, rotated secret, still active
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.Secret, second.Secret)
	assert.True(t, second.Active)

	stats, err := f.service.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestService_Subscribe_ReactivatesInactive(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	sub, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)
	require.NoError(t, f.service.Unsubscribe(ctx, sub.ID))

	again, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.True(t, again.Active)
	assert.NotEqual(t, sub.Secret, again.Secret)
}

func TestService_Unsubscribe(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	sub, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)

	require.NoError(t, f.service.Unsubscribe(ctx, sub.ID))

	active, err := f.subscribers.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	t.Run("already inactive yields not found", func(t *testing.T) {
		err := f.service.Unsubscribe(ctx, sub.ID)
		assert.ErrorIs(t, err, ErrSubscriberNotFound)
	})

	t.Run("never created yields not found", func(t *testing.T) {
		err := f.service.Unsubscribe(ctx, 9999)
		assert.ErrorIs(t, err, ErrSubscriberNotFound)
	})
}

func TestService_Reactivate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	sub, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)
	require.NoError(t, f.service.Unsubscribe(ctx, sub.ID))

	got, err := f.service.Reactivate(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	// explicit reactivation keeps the issued secret
	assert.Equal(t, sub.Secret, got.Secret)

	_, err = f.service.Reactivate(ctx, 12345)
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestService_PublishThenBroadcast(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)

	msg, err := f.service.Publish(ctx, "hello")
	require.NoError(t, err)

	// publish alone never fans out
	assert.Equal(t, 0, f.dispatcher.calls)

	got, err := f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)

	require.Equal(t, 1, f.dispatcher.calls)
	assert.Equal(t, msg.ID, f.dispatcher.lastPay.TxID)
	assert.Equal(t, "hello", f.dispatcher.lastPay.Message)
	assert.False(t, f.dispatcher.lastPay.Timestamp.IsZero())
}

func TestService_RequestAndBroadcast_CacheWarm(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	msg, err := f.service.Publish(ctx, "cached-body")
	require.NoError(t, err)

	first, err := f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached-body", first.Body)
	assert.Equal(t, int64(1), f.messages.GetCalls())

	// warm cache: the second read never touches the store
	second, err := f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached-body", second.Body)
	assert.Equal(t, int64(1), f.messages.GetCalls())
}

func TestService_RequestAndBroadcast_NotFound(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Subscribe(ctx, "https://example.com/hook")
	require.NoError(t, err)

	_, err = f.service.RequestAndBroadcast(ctx, 404)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	// a missing message never reaches the dispatcher
	assert.Equal(t, 0, f.dispatcher.calls)
}

func TestService_RequestAndBroadcast_OnlyActiveSubscribers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	active, err := f.service.Subscribe(ctx, "https://a.example.com")
	require.NoError(t, err)
	inactive, err := f.service.Subscribe(ctx, "https://b.example.com")
	require.NoError(t, err)
	require.NoError(t, f.service.Unsubscribe(ctx, inactive.ID))

	msg, err := f.service.Publish(ctx, "hello")
	require.NoError(t, err)

	_, err = f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)

	require.Len(t, f.dispatcher.lastSubs, 1)
	assert.Equal(t, active.ID, f.dispatcher.lastSubs[0].ID)
}

func TestService_RequestAndBroadcast_DeliveryFailureTolerated(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	sub, err := f.service.Subscribe(ctx, "https://broken.example.com")
	require.NoError(t, err)
	f.dispatcher.fail = map[int64]bool{sub.ID: true}

	msg, err := f.service.Publish(ctx, "hello")
	require.NoError(t, err)

	// a failing endpoint never turns the read into an error
	got, err := f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
}

func TestService_RequestAndBroadcast_NoSubscribers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	msg, err := f.service.Publish(ctx, "hello")
	require.NoError(t, err)

	got, err := f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, 0, f.dispatcher.calls)
}

func TestService_RequestAndBroadcast_PopulatesCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	msg, err := f.service.Publish(ctx, "hello")
	require.NoError(t, err)

	_, err = f.service.RequestAndBroadcast(ctx, msg.ID)
	require.NoError(t, err)

	value, ok, err := f.cache.Get(ctx, cache.MessageKey(msg.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", value)
}

func TestService_GetStats(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for _, url := range []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"} {
		_, err := f.service.Subscribe(ctx, url)
		require.NoError(t, err)
	}
	sub, err := f.subscribers.GetByURL(ctx, "https://b.example.com")
	require.NoError(t, err)
	require.NoError(t, f.service.Unsubscribe(ctx, sub.ID))

	stats, err := f.service.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Active: 2, Inactive: 1}, stats)
}

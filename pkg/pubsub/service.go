package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/relaypub/relay/pkg/cache"
	"github.com/relaypub/relay/pkg/observability"
	"github.com/relaypub/relay/pkg/storage"
	"github.com/relaypub/relay/pkg/webhooks"
)

// Dispatcher is the delivery capability the service needs. Satisfied by
// *webhooks.Dispatcher.
type Dispatcher interface {
	DeliverAll(ctx context.Context, subs []*storage.Subscriber, payload webhooks.Payload) []webhooks.DeliveryResult
}

// Stats is a read-only aggregate over all subscribers.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// Service orchestrates subscriber lifecycle, message publication and
// broadcast delivery. All dependencies are wired explicitly at construction.
type Service struct {
	subscribers storage.SubscriberStore
	messages    storage.MessageStore
	cache       storage.MessageCache
	dispatcher  Dispatcher
	logger      *observability.Logger
	metrics     *observability.Metrics
	cacheTTL    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches cache and subscriber metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the pub/sub orchestrator.
func NewService(
	subscribers storage.SubscriberStore,
	messages storage.MessageStore,
	messageCache storage.MessageCache,
	dispatcher Dispatcher,
	cacheTTL time.Duration,
	logger *observability.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		subscribers: subscribers,
		messages:    messages,
		cache:       messageCache,
		dispatcher:  dispatcher,
		logger:      logger,
		cacheTTL:    cacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a webhook URL. Re-subscribing an existing URL rotates
// its secret and forces it active instead of creating a duplicate row. The
// returned subscriber carries the current secret; this is the only point at
// which it is revealed.
func (s *Service) Subscribe(ctx context.Context, url string) (*storage.Subscriber, error) {
	sub, updated, err := s.subscribers.UpsertByURL(ctx, url)
	if err != nil {
		return nil, err
	}

	if updated {
		s.logger.Infof("Subscriber updated for URL: %s (sub_id: %d)", url, sub.ID)
	} else {
		s.logger.Infof("New subscriber created for URL: %s (sub_id: %d)", url, sub.ID)
	}
	return sub, nil
}

// Unsubscribe deactivates a subscriber. A subscriber that does not exist or
// is already inactive yields ErrSubscriberNotFound.
func (s *Service) Unsubscribe(ctx context.Context, id int64) error {
	sub, err := s.subscribers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub == nil || !sub.Active {
		return ErrSubscriberNotFound
	}

	if _, err := s.subscribers.SetActive(ctx, id, false); err != nil {
		return err
	}

	s.logger.Infof("Subscriber deactivated: %s (sub_id: %d)", sub.URL, id)
	return nil
}

// Reactivate flips an inactive subscriber back to active without rotating
// its secret.
func (s *Service) Reactivate(ctx context.Context, id int64) (*storage.Subscriber, error) {
	existing, err := s.subscribers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSubscriberNotFound
	}

	sub, err := s.subscribers.SetActive(ctx, id, true)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Subscriber reactivated (sub_id: %d)", id)
	return sub, nil
}

// Publish persists a message. The producer-facing write path performs no
// caching and no fan-out.
func (s *Service) Publish(ctx context.Context, body string) (*storage.Message, error) {
	return s.messages.Create(ctx, body)
}

// RequestAndBroadcast resolves a message through the cache-aside read path
// and fans it out to all active subscribers. The resolved message is
// returned regardless of delivery outcomes; an unreachable subscriber never
// turns this call into an error.
func (s *Service) RequestAndBroadcast(ctx context.Context, txID int64) (*storage.Message, error) {
	key := cache.MessageKey(txID)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var msg *storage.Message
	if ok {
		msg = &storage.Message{ID: txID, Body: cached}
		if s.metrics != nil {
			s.metrics.CacheHitsTotal.Inc()
		}
		s.logger.Debugf("Using cached message for tx_id: %d", txID)
	} else {
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}

		msg, err = s.messages.GetByID(ctx, txID)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, ErrMessageNotFound
		}

		// Write-through-on-read. Failure to cache never fails the
		// read path.
		if err := s.cache.Set(ctx, key, msg.Body, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warnf("Failed to cache message for tx_id: %d", txID)
		}
	}

	active, err := s.subscribers.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SubscribersActive.Set(float64(len(active)))
	}

	if len(active) == 0 {
		s.logger.Debugf("No active subscribers for tx_id: %d", txID)
		return msg, nil
	}

	s.logger.Infof("Broadcasting tx_id %d to %d active subscribers", txID, len(active))
	payload := webhooks.Payload{
		TxID:      msg.ID,
		Message:   msg.Body,
		Timestamp: time.Now(),
	}

	results := s.dispatcher.DeliverAll(ctx, active, payload)
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warnf("Broadcast for tx_id %d: %d of %d deliveries failed", txID, failed, len(results))
	}

	return msg, nil
}

// GetStats derives subscriber counts from a full listing. Read-only, no
// side effects.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	subs, err := s.subscribers.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute subscriber stats: %w", err)
	}

	stats := Stats{Total: len(subs)}
	for _, sub := range subs {
		if sub.Active {
			stats.Active++
		}
	}
	stats.Inactive = stats.Total - stats.Active
	return stats, nil
}

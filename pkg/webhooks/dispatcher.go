package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/relaypub/relay/pkg/observability"
	"github.com/relaypub/relay/pkg/storage"
)

const (
	// DefaultRequestTimeout bounds one delivery attempt.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultMaxConcurrent bounds the number of in-flight deliveries
	// during a single fan-out.
	DefaultMaxConcurrent = 32
)

// DeliveryError reports a failed delivery to one subscriber.
type DeliveryError struct {
	SubscriberID int64
	URL          string
	StatusCode   int
	Err          error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery to %s failed: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("delivery to %s failed: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DeliveryResult is the outcome of one delivery attempt within a fan-out.
type DeliveryResult struct {
	SubscriberID int64
	URL          string
	Duration     time.Duration
	Err          error
}

// Dispatcher performs signed webhook deliveries.
type Dispatcher struct {
	client        *http.Client
	signer        *Signer
	logger        *observability.Logger
	metrics       *observability.Metrics
	maxConcurrent int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithMaxConcurrent bounds in-flight deliveries per fan-out.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrent = int64(n)
		}
	}
}

// WithMetrics attaches delivery metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(signer *Signer, logger *observability.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		signer:        signer,
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// deliveryBody is the JSON body POSTed to subscribers.
type deliveryBody struct {
	Token string `json:"token"`
}

// DeliverOne signs the payload with the subscriber's secret and POSTs it to
// the subscriber's URL. Any non-2xx response, transport error or timeout is
// a *DeliveryError.
func (d *Dispatcher) DeliverOne(ctx context.Context, sub *storage.Subscriber, payload Payload) error {
	token, err := d.signer.Sign(payload, sub.Secret)
	if err != nil {
		return &DeliveryError{SubscriberID: sub.ID, URL: sub.URL, Err: err}
	}

	body, err := json.Marshal(deliveryBody{Token: token})
	if err != nil {
		return &DeliveryError{SubscriberID: sub.ID, URL: sub.URL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{SubscriberID: sub.ID, URL: sub.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{SubscriberID: sub.ID, URL: sub.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{SubscriberID: sub.ID, URL: sub.URL, StatusCode: resp.StatusCode}
	}

	return nil
}

// DeliverAll fans the payload out to every subscriber concurrently and
// joins on all deliveries. Failures are logged and reported per subscriber;
// the aggregate call never fails and no delivery is retried or cancelled
// because a sibling failed.
func (d *Dispatcher) DeliverAll(ctx context.Context, subs []*storage.Subscriber, payload Payload) []DeliveryResult {
	if len(subs) == 0 {
		return nil
	}

	results := make([]DeliveryResult, len(subs))
	sem := semaphore.NewWeighted(d.maxConcurrent)
	var wg sync.WaitGroup

	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *storage.Subscriber) {
			defer wg.Done()

			// Acquire cannot fail here: the context passed in is
			// only used for the HTTP requests, not for aborting
			// the fan-out itself.
			if err := sem.Acquire(context.Background(), 1); err != nil {
				results[i] = DeliveryResult{SubscriberID: sub.ID, URL: sub.URL, Err: err}
				return
			}
			defer sem.Release(1)

			start := time.Now()
			err := d.DeliverOne(ctx, sub, payload)
			duration := time.Since(start)

			results[i] = DeliveryResult{
				SubscriberID: sub.ID,
				URL:          sub.URL,
				Duration:     duration,
				Err:          err,
			}

			if d.metrics != nil {
				d.metrics.RecordDelivery(err, duration)
			}
			if err != nil {
				d.logger.WithError(err).WithFields(map[string]interface{}{
					"sub_id": sub.ID,
					"tx_id":  payload.TxID,
				}).Warn("Webhook delivery failed")
			}
		}(i, sub)
	}

	wg.Wait()
	return results
}

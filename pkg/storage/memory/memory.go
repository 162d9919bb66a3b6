// Package memory provides in-memory implementations of the storage
// interfaces. They back unit tests and local experimentation; the durable
// implementations live in pkg/storage/postgres and pkg/cache.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaypub/relay/pkg/storage"
)

// SubscriberStore is an in-memory storage.SubscriberStore.
type SubscriberStore struct {
	mu     sync.RWMutex
	byID   map[int64]*storage.Subscriber
	nextID int64
}

// NewSubscriberStore creates an empty in-memory subscriber store.
func NewSubscriberStore() *SubscriberStore {
	return &SubscriberStore{byID: make(map[int64]*storage.Subscriber)}
}

func (s *SubscriberStore) findByURL(url string) *storage.Subscriber {
	for _, sub := range s.byID {
		if sub.URL == url {
			return sub
		}
	}
	return nil
}

func copySubscriber(sub *storage.Subscriber) *storage.Subscriber {
	c := *sub
	return &c
}

// Create inserts a new active subscriber with a fresh secret.
func (s *SubscriberStore) Create(ctx context.Context, url string) (*storage.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByURL(url) != nil {
		return nil, storage.ErrConflict
	}

	secret, err := storage.NewSecret()
	if err != nil {
		return nil, err
	}

	s.nextID++
	now := time.Now()
	sub := &storage.Subscriber{
		ID:        s.nextID,
		URL:       url,
		Secret:    secret,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[sub.ID] = sub
	return copySubscriber(sub), nil
}

// GetByID returns the subscriber or (nil, nil) if absent.
func (s *SubscriberStore) GetByID(ctx context.Context, id int64) (*storage.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return copySubscriber(sub), nil
}

// GetByURL returns the subscriber or (nil, nil) if absent.
func (s *SubscriberStore) GetByURL(ctx context.Context, url string) (*storage.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub := s.findByURL(url)
	if sub == nil {
		return nil, nil
	}
	return copySubscriber(sub), nil
}

// List returns all subscribers, newest first.
func (s *SubscriberStore) List(ctx context.Context) ([]*storage.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(*storage.Subscriber) bool { return true }), nil
}

// ListActive returns active subscribers, newest first.
func (s *SubscriberStore) ListActive(ctx context.Context) ([]*storage.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(sub *storage.Subscriber) bool { return sub.Active }), nil
}

func (s *SubscriberStore) listLocked(keep func(*storage.Subscriber) bool) []*storage.Subscriber {
	var subs []*storage.Subscriber
	for _, sub := range s.byID {
		if keep(sub) {
			subs = append(subs, copySubscriber(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID > subs[j].ID })
	return subs
}

// SetActive flips the active flag and returns the updated row.
func (s *SubscriberStore) SetActive(ctx context.Context, id int64, active bool) (*storage.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	sub.Active = active
	sub.UpdatedAt = time.Now()
	return copySubscriber(sub), nil
}

// UpsertByURL inserts a fresh subscriber, or rotates the secret and forces
// active for an existing URL.
func (s *SubscriberStore) UpsertByURL(ctx context.Context, url string) (*storage.Subscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := storage.NewSecret()
	if err != nil {
		return nil, false, err
	}

	if sub := s.findByURL(url); sub != nil {
		sub.Secret = secret
		sub.Active = true
		sub.UpdatedAt = time.Now()
		return copySubscriber(sub), true, nil
	}

	s.nextID++
	now := time.Now()
	sub := &storage.Subscriber{
		ID:        s.nextID,
		URL:       url,
		Secret:    secret,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[sub.ID] = sub
	return copySubscriber(sub), false, nil
}

// Delete removes a subscriber row and reports whether one was removed.
func (s *SubscriberStore) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	delete(s.byID, id)
	return true, nil
}

// MessageStore is an in-memory storage.MessageStore. GetCalls counts reads,
// which lets tests verify that a warm cache skips the store.
type MessageStore struct {
	mu       sync.RWMutex
	byID     map[int64]*storage.Message
	nextID   int64
	getCalls int64
}

// NewMessageStore creates an empty in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[int64]*storage.Message)}
}

// Create assigns an identity and stores the body.
func (s *MessageStore) Create(ctx context.Context, body string) (*storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := &storage.Message{
		ID:        s.nextID,
		Body:      body,
		CreatedAt: time.Now(),
	}
	s.byID[msg.ID] = msg
	c := *msg
	return &c, nil
}

// GetByID returns the message or (nil, nil) if absent.
func (s *MessageStore) GetByID(ctx context.Context, id int64) (*storage.Message, error) {
	atomic.AddInt64(&s.getCalls, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	c := *msg
	return &c, nil
}

// GetCalls reports how many times GetByID has been invoked.
func (s *MessageStore) GetCalls() int64 {
	return atomic.LoadInt64(&s.getCalls)
}

// Cache is an in-memory storage.MessageCache. TTLs are honored lazily on
// read.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewCache creates an empty in-memory cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value, honoring expiry.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores a value with a TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete invalidates a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

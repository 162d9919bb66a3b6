package storage

import (
	"context"
	"time"
)

// Subscriber is a registered webhook endpoint along with the secret used to
// sign deliveries to it. The secret is only revealed to callers at creation
// or rotation time.
type Subscriber struct {
	ID        int64     `json:"sub_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is an immutable published payload.
type Message struct {
	ID        int64     `json:"tx_id"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscriberStore provides durable subscriber persistence. URL uniqueness is
// enforced by the store itself (a constraint, not a pre-check) so that two
// concurrent Create calls for the same URL resolve to exactly one insert.
type SubscriberStore interface {
	// Create inserts a new active subscriber with a freshly generated
	// secret. Returns ErrConflict if the URL is already registered.
	Create(ctx context.Context, url string) (*Subscriber, error)

	// GetByID returns the subscriber or (nil, nil) if absent.
	GetByID(ctx context.Context, id int64) (*Subscriber, error)

	// GetByURL returns the subscriber or (nil, nil) if absent.
	GetByURL(ctx context.Context, url string) (*Subscriber, error)

	// List returns all subscribers, newest first.
	List(ctx context.Context) ([]*Subscriber, error)

	// ListActive returns active subscribers, newest first.
	ListActive(ctx context.Context) ([]*Subscriber, error)

	// SetActive flips the active flag and returns the updated row.
	// Returns ErrNotFound if the id does not exist.
	SetActive(ctx context.Context, id int64, active bool) (*Subscriber, error)

	// UpsertByURL inserts a fresh subscriber for the URL, or, if one
	// already exists, rotates its secret and forces it active. The
	// updated flag reports which of the two happened.
	UpsertByURL(ctx context.Context, url string) (sub *Subscriber, updated bool, err error)

	// Delete hard-deletes a subscriber row and reports whether a row was
	// removed.
	Delete(ctx context.Context, id int64) (bool, error)
}

// MessageStore provides append-only message persistence.
type MessageStore interface {
	// Create assigns an identity and persists the body.
	Create(ctx context.Context, body string) (*Message, error)

	// GetByID returns the message or (nil, nil) if absent.
	GetByID(ctx context.Context, id int64) (*Message, error)
}

// MessageCache is a best-effort key/value cache fronting message reads.
// A miss is a normal outcome, not an error.
type MessageCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/relaypub/relay/pkg/storage"
)

// pq error code for unique constraint violations.
const uniqueViolation = "23505"

// SubscriberStore implements storage.SubscriberStore on PostgreSQL.
type SubscriberStore struct {
	db *sql.DB
}

// NewSubscriberStore creates a PostgreSQL-backed subscriber store.
func NewSubscriberStore(db *sql.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

const subscriberColumns = "id, url, secret, active, created_at, updated_at"

func scanSubscriber(row interface{ Scan(...interface{}) error }) (*storage.Subscriber, error) {
	var sub storage.Subscriber
	err := row.Scan(&sub.ID, &sub.URL, &sub.Secret, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create inserts a new active subscriber with a fresh secret. A concurrent
// insert for the same URL loses the race at the unique constraint and
// surfaces as storage.ErrConflict.
func (s *SubscriberStore) Create(ctx context.Context, url string) (*storage.Subscriber, error) {
	secret, err := storage.NewSecret()
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO subscribers (url, secret, active)
		VALUES ($1, $2, TRUE)
		RETURNING ` + subscriberColumns

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, url, secret))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, storage.ErrConflict
		}
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}
	return sub, nil
}

// GetByID returns the subscriber or (nil, nil) if absent.
func (s *SubscriberStore) GetByID(ctx context.Context, id int64) (*storage.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber %d: %w", id, err)
	}
	return sub, nil
}

// GetByURL returns the subscriber or (nil, nil) if absent.
func (s *SubscriberStore) GetByURL(ctx context.Context, url string) (*storage.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE url = $1`

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber by url: %w", err)
	}
	return sub, nil
}

// List returns all subscribers, newest first.
func (s *SubscriberStore) List(ctx context.Context) ([]*storage.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers ORDER BY created_at DESC, id DESC`
	return s.queryList(ctx, query)
}

// ListActive returns active subscribers, newest first.
func (s *SubscriberStore) ListActive(ctx context.Context) ([]*storage.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE active = TRUE ORDER BY created_at DESC, id DESC`
	return s.queryList(ctx, query)
}

func (s *SubscriberStore) queryList(ctx context.Context, query string) ([]*storage.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*storage.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriber rows: %w", err)
	}
	return subs, nil
}

// SetActive flips the active flag and returns the post-update row.
func (s *SubscriberStore) SetActive(ctx context.Context, id int64, active bool) (*storage.Subscriber, error) {
	query := `
		UPDATE subscribers
		SET active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + subscriberColumns

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, query, id, active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscriber %d: %w", id, err)
	}
	return sub, nil
}

// UpsertByURL inserts a fresh subscriber, or rotates the secret and forces
// active=TRUE if the URL is already registered. The single statement makes
// the insert-or-update decision inside the database, so concurrent calls
// for the same URL cannot both insert. xmax is non-zero only for updated
// rows, which is how the updated flag is derived.
func (s *SubscriberStore) UpsertByURL(ctx context.Context, url string) (*storage.Subscriber, bool, error) {
	secret, err := storage.NewSecret()
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO subscribers (url, secret, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (url) DO UPDATE
		SET secret = EXCLUDED.secret, active = TRUE, updated_at = NOW()
		RETURNING ` + subscriberColumns + `, (xmax <> 0) AS updated`

	var sub storage.Subscriber
	var updated bool
	err = s.db.QueryRowContext(ctx, query, url, secret).Scan(
		&sub.ID, &sub.URL, &sub.Secret, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt, &updated,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return &sub, updated, nil
}

// Delete hard-deletes a subscriber row and reports whether a row was removed.
func (s *SubscriberStore) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete subscriber %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

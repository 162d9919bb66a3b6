package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypub/relay/pkg/storage"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func subscriberRows(subs ...*storage.Subscriber) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "url", "secret", "active", "created_at", "updated_at"})
	for _, sub := range subs {
		rows.AddRow(sub.ID, sub.URL, sub.Secret, sub.Active, sub.CreatedAt, sub.UpdatedAt)
	}
	return rows
}

func testSubscriber(id int64, url string, active bool) *storage.Subscriber {
	now := time.Now()
	return &storage.Subscriber{
		ID:        id,
		URL:       url,
		Secret:    "secret-" + url,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSubscriberStore_Create(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		sub := testSubscriber(1, "https://example.com/hook", true)
		mock.ExpectQuery("INSERT INTO subscribers").
			WithArgs("https://example.com/hook", sqlmock.AnyArg()).
			WillReturnRows(subscriberRows(sub))

		store := NewSubscriberStore(db)
		got, err := store.Create(context.Background(), "https://example.com/hook")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "https://example.com/hook", got.URL)
		assert.True(t, got.Active)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate url maps to conflict", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO subscribers").
			WillReturnError(&pq.Error{Code: "23505"})

		store := NewSubscriberStore(db)
		_, err := store.Create(context.Background(), "https://example.com/hook")
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("other faults are wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO subscribers").
			WillReturnError(errors.New("connection reset"))

		store := NewSubscriberStore(db)
		_, err := store.Create(context.Background(), "https://example.com/hook")
		require.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrConflict)
		assert.Contains(t, err.Error(), "failed to create subscriber")
	})
}

func TestSubscriberStore_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		sub := testSubscriber(7, "https://example.com/hook", true)
		mock.ExpectQuery("SELECT (.+) FROM subscribers WHERE id").
			WithArgs(int64(7)).
			WillReturnRows(subscriberRows(sub))

		store := NewSubscriberStore(db)
		got, err := store.GetByID(context.Background(), 7)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(7), got.ID)
	})

	t.Run("absence is not an error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM subscribers WHERE id").
			WithArgs(int64(99)).
			WillReturnRows(subscriberRows())

		store := NewSubscriberStore(db)
		got, err := store.GetByID(context.Background(), 99)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSubscriberStore_GetByURL(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	sub := testSubscriber(3, "https://example.com/hook", false)
	mock.ExpectQuery("SELECT (.+) FROM subscribers WHERE url").
		WithArgs("https://example.com/hook").
		WillReturnRows(subscriberRows(sub))

	store := NewSubscriberStore(db)
	got, err := store.GetByURL(context.Background(), "https://example.com/hook")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active)
}

func TestSubscriberStore_List(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	newer := testSubscriber(2, "https://b.example.com", true)
	older := testSubscriber(1, "https://a.example.com", false)
	mock.ExpectQuery("SELECT (.+) FROM subscribers ORDER BY created_at DESC").
		WillReturnRows(subscriberRows(newer, older))

	store := NewSubscriberStore(db)
	subs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(2), subs[0].ID)
	assert.Equal(t, int64(1), subs[1].ID)
}

func TestSubscriberStore_ListActive(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	active := testSubscriber(5, "https://c.example.com", true)
	mock.ExpectQuery("SELECT (.+) FROM subscribers WHERE active = TRUE").
		WillReturnRows(subscriberRows(active))

	store := NewSubscriberStore(db)
	subs, err := store.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Active)
}

func TestSubscriberStore_SetActive(t *testing.T) {
	t.Run("returns post-update row", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		sub := testSubscriber(4, "https://example.com/hook", false)
		mock.ExpectQuery("UPDATE subscribers").
			WithArgs(int64(4), false).
			WillReturnRows(subscriberRows(sub))

		store := NewSubscriberStore(db)
		got, err := store.SetActive(context.Background(), 4, false)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("missing id yields not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("UPDATE subscribers").
			WithArgs(int64(42), true).
			WillReturnRows(subscriberRows())

		store := NewSubscriberStore(db)
		_, err := store.SetActive(context.Background(), 42, true)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSubscriberStore_UpsertByURL(t *testing.T) {
	upsertRows := func(sub *storage.Subscriber, updated bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "url", "secret", "active", "created_at", "updated_at", "updated"}).
			AddRow(sub.ID, sub.URL, sub.Secret, sub.Active, sub.CreatedAt, sub.UpdatedAt, updated)
	}

	t.Run("fresh insert", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		sub := testSubscriber(1, "https://example.com/hook", true)
		mock.ExpectQuery("ON CONFLICT").
			WithArgs("https://example.com/hook", sqlmock.AnyArg()).
			WillReturnRows(upsertRows(sub, false))

		store := NewSubscriberStore(db)
		got, updated, err := store.UpsertByURL(context.Background(), "https://example.com/hook")
		require.NoError(t, err)
		assert.False(t, updated)
		assert.True(t, got.Active)
	})

	t.Run("existing url reports update", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		sub := testSubscriber(1, "https://example.com/hook", true)
		mock.ExpectQuery("ON CONFLICT").
			WithArgs("https://example.com/hook", sqlmock.AnyArg()).
			WillReturnRows(upsertRows(sub, true))

		store := NewSubscriberStore(db)
		got, updated, err := store.UpsertByURL(context.Background(), "https://example.com/hook")
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, int64(1), got.ID)
	})
}

func TestSubscriberStore_Delete(t *testing.T) {
	t.Run("row removed", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("DELETE FROM subscribers").
			WithArgs(int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		store := NewSubscriberStore(db)
		removed, err := store.Delete(context.Background(), 9)
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("no row", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("DELETE FROM subscribers").
			WithArgs(int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		store := NewSubscriberStore(db)
		removed, err := store.Delete(context.Background(), 10)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

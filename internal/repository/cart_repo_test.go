package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

var (
	cartColumns     = []string{"id", "user_id", "created_at"}
	cartLineColumns = []string{"id", "cart_id", "product_id", "name", "price", "quantity"}
)

func TestCartRepository_GetOrCreateExisting(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresCartRepository(db, logger)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cartColumns).AddRow(10, 1, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(cartLineColumns).
			AddRow(100, 10, 5, "Lamp", "12.50", 2))

	cart, err := repo.GetOrCreateCart(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, int64(10), cart.ID)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "Lamp", cart.Lines[0].ProductName)
	assert.Equal(t, "25", cart.Total().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepository_GetOrCreateCreatesLazily(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresCartRepository(db, logger)

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(cartColumns))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM carts")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(cartColumns).AddRow(11, 2, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(cartLineColumns))

	cart, err := repo.GetOrCreateCart(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, int64(11), cart.ID)
	assert.True(t, cart.IsEmpty())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepository_GetOrCreateUnknownUser(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresCartRepository(db, logger)

	mock.ExpectQuery(regexp.QuoteMeta("FROM carts")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cartColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts")).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	_, err := repo.GetOrCreateCart(context.Background(), 3)

	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestCartRepository_AddLineMergesQuantity(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresCartRepository(db, logger)

	mock.ExpectExec(regexp.QuoteMeta("DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity")).
		WithArgs(int64(10), int64(5), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddLine(context.Background(), 10, 5, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepository_LineOwnership(t *testing.T) {
	t.Run("update foreign line", func(t *testing.T) {
		db, mock, logger := newMock(t)
		repo := NewPostgresCartRepository(db, logger)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3")).
			WithArgs(4, int64(200), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateLineQuantity(context.Background(), 10, 200, 4)

		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("remove own line", func(t *testing.T) {
		db, mock, logger := newMock(t)
		repo := NewPostgresCartRepository(db, logger)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cart_items WHERE id = $1 AND cart_id = $2")).
			WithArgs(int64(100), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.RemoveLine(context.Background(), 10, 100))
	})
}

func TestCartRepository_LockCart(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresCartRepository(db, logger)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM carts WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(10)).
		WillReturnError(&pq.Error{Code: pqLockNotAvailable})

	err := repo.LockCart(context.Background(), 10)

	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

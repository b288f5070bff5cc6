package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

var (
	orderColumns = []string{"id", "user_id", "order_date", "total_amount", "status", "shipping_address", "payment_ref",
		"id", "first_name", "last_name", "email", "role"}
	orderLineColumns = []string{"id", "order_id", "product_id", "name", "quantity", "price"}
)

func TestOrderRepository_CreateOrder(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresOrderRepository(db, logger)

	order := domain.NewPendingOrder(1, "1 Main St", "pay_123", []domain.ReservedLine{
		{ProductID: 5, ProductName: "Lamp", Quantity: 2, Price: decimal.RequireFromString("12.50")},
		{ProductID: 6, ProductName: "Bulb", Quantity: 1, Price: decimal.RequireFromString("0.99")},
	}, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(int64(1), sqlmock.AnyArg(), decimal.RequireFromString("25.99"), domain.StatusPending, "1 Main St", "pay_123").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(42), int64(5), 2, decimal.RequireFromString("12.50")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(42), int64(6), 1, decimal.RequireFromString("0.99")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	created, err := repo.CreateOrder(context.Background(), order)

	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, int64(42), created.Lines[1].OrderID)
	assert.Equal(t, int64(2), created.Lines[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateOrderRejectsMismatchedTotal(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresOrderRepository(db, logger)

	order := domain.NewPendingOrder(1, "addr", "", []domain.ReservedLine{
		{ProductID: 5, Quantity: 1, Price: decimal.RequireFromString("3.00")},
	}, time.Now())
	order.TotalAmount = decimal.RequireFromString("2.99")

	_, err := repo.CreateOrder(context.Background(), order)

	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListOrdersByUserID(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresOrderRepository(db, logger)
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.user_id = $1 ORDER BY o.order_date DESC, o.id DESC")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow(8, 1, newer, "5.00", "PENDING", "addr B", "", 1, "Ada", "L", "ada@example.com", "USER").
			AddRow(7, 1, older, "3.00", "SHIPPED", "addr A", "", 1, "Ada", "L", "ada@example.com", "USER"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items oi")).
		WithArgs(pq.Array([]int64{8, 7})).
		WillReturnRows(sqlmock.NewRows(orderLineColumns).
			AddRow(20, 7, 5, "Lamp", 1, "3.00").
			AddRow(21, 8, 6, "Bulb", 5, "1.00"))

	orders, err := repo.ListOrdersByUserID(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(8), orders[0].ID)
	assert.Equal(t, "Ada", orders[0].User.FirstName)
	assert.Equal(t, domain.RoleUser, orders[0].User.Role)
	require.Len(t, orders[0].Lines, 1)
	assert.Equal(t, "Bulb", orders[0].Lines[0].ProductName)
	require.Len(t, orders[1].Lines, 1)
	assert.Equal(t, domain.StatusShipped, orders[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListOrdersEmptySkipsItemQuery(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresOrderRepository(db, logger)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders o")).WillReturnRows(sqlmock.NewRows(orderColumns))

	orders, err := repo.ListAllOrders(context.Background())

	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateOrderStatusNotFound(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresOrderRepository(db, logger)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = $1 WHERE id = $2")).
		WithArgs(domain.StatusShipped, int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateOrderStatus(context.Background(), 404, domain.StatusShipped)

	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestOrderRepository_ListShippingAddresses(t *testing.T) {
	db, mock, logger := newMock(t)
	repo := NewPostgresOrderRepository(db, logger)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY shipping_address")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"shipping_address"}).AddRow("addr B").AddRow("addr A"))

	addresses, err := repo.ListShippingAddresses(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"addr B", "addr A"}, addresses)
}

package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/repository/memory"
)

// contendedProducts misses the first decrements as if another writer bumped the version.
// When steal is set, each miss also consumes that much real stock.
type contendedProducts struct {
	domain.ProductRepository
	misses int
	steal  int
	calls  int
}

func (c *contendedProducts) DecrementStock(ctx context.Context, id int64, qty int, version int64) (*domain.StockRecord, error) {
	c.calls++
	if c.misses > 0 {
		c.misses--
		if c.steal > 0 {
			if _, err := c.ProductRepository.DecrementStock(ctx, id, c.steal, version); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return c.ProductRepository.DecrementStock(ctx, id, qty, version)
}

// repricedProducts reports a new catalog price on the decrement, as if the price changed
// after the stock was read.
type repricedProducts struct {
	domain.ProductRepository
	price decimal.Decimal
}

func (r *repricedProducts) DecrementStock(ctx context.Context, id int64, qty int, version int64) (*domain.StockRecord, error) {
	rec, err := r.ProductRepository.DecrementStock(ctx, id, qty, version)
	if rec != nil {
		rec.Price = r.price
	}
	return rec, err
}

func newLedgerStore(t *testing.T) *memory.Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := memory.NewStore(logger)
	s.SeedProduct(domain.Product{ID: 1, Name: "Pen", Price: decimal.RequireFromString("1.25"), Stock: 10})
	s.SeedProduct(domain.Product{ID: 2, Name: "Ink", Price: decimal.RequireFromString("4.00"), Stock: 1})
	s.SeedProduct(domain.Product{ID: 3, Name: "Pad", Price: decimal.RequireFromString("2.50"), Stock: 0})
	return s
}

func newLedger(attempts int) *InventoryLedger {
	logger, _ := test.NewNullLogger()
	return NewInventoryLedger(attempts, time.Millisecond, logger)
}

func TestCheckAndReserve_MergesAndSorts(t *testing.T) {
	s := newLedgerStore(t)

	reserved, err := newLedger(3).CheckAndReserve(context.Background(), s.Products(), []domain.RequestedLine{
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 2},
		{ProductID: 1, Quantity: 3},
	})

	require.NoError(t, err)
	require.Len(t, reserved, 2)
	assert.Equal(t, int64(1), reserved[0].ProductID)
	assert.Equal(t, 5, reserved[0].Quantity)
	assert.Equal(t, "Pen", reserved[0].ProductName)
	assert.True(t, decimal.RequireFromString("1.25").Equal(reserved[0].Price))
	stock, _ := s.Stock(1)
	assert.Equal(t, 5, stock)
	stock, _ = s.Stock(2)
	assert.Equal(t, 0, stock)
}

func TestCheckAndReserve_ReportsEveryShortageWithoutWriting(t *testing.T) {
	s := newLedgerStore(t)

	_, err := newLedger(3).CheckAndReserve(context.Background(), s.Products(), []domain.RequestedLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 2},
		{ProductID: 3, Quantity: 1},
	})

	var short *domain.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Len(t, short.Shortages, 2)
	assert.Equal(t, domain.Shortage{ProductID: 2, ProductName: "Ink", Requested: 2, Available: 1}, short.Shortages[0])
	assert.Equal(t, int64(3), short.Shortages[1].ProductID)
	assert.True(t, domain.IsInvalidState(err))
	stock, _ := s.Stock(1)
	assert.Equal(t, 10, stock)
}

func TestCheckAndReserve_Validation(t *testing.T) {
	s := newLedgerStore(t)
	ledger := newLedger(3)
	ctx := context.Background()

	_, err := ledger.CheckAndReserve(ctx, s.Products(), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = ledger.CheckAndReserve(ctx, s.Products(), []domain.RequestedLine{{ProductID: 1, Quantity: 0}})
	assert.True(t, domain.IsInvalidState(err))

	_, err = ledger.CheckAndReserve(ctx, s.Products(), []domain.RequestedLine{{ProductID: 77, Quantity: 1}})
	assert.True(t, domain.IsNotFound(err))
	assert.Contains(t, err.Error(), "77")
}

func TestCheckAndReserve_RejectsQuantitiesAboveLimit(t *testing.T) {
	s := newLedgerStore(t)
	ledger := newLedger(3)
	ctx := context.Background()

	_, err := ledger.CheckAndReserve(ctx, s.Products(), []domain.RequestedLine{{ProductID: 1, Quantity: domain.MaxLineQuantity + 1}})
	assert.True(t, domain.IsInvalidState(err))

	_, err = ledger.CheckAndReserve(ctx, s.Products(), []domain.RequestedLine{
		{ProductID: 1, Quantity: math.MaxInt/2 + 1},
		{ProductID: 1, Quantity: math.MaxInt/2 + 1},
	})
	assert.True(t, domain.IsInvalidState(err))

	_, err = ledger.CheckAndReserve(ctx, s.Products(), []domain.RequestedLine{
		{ProductID: 1, Quantity: domain.MaxLineQuantity},
		{ProductID: 1, Quantity: 1},
	})
	assert.True(t, domain.IsInvalidState(err))
	assert.Contains(t, err.Error(), "at most")

	stock, _ := s.Stock(1)
	assert.Equal(t, 10, stock)
}

func TestCheckAndReserve_UsesPriceAtDecrement(t *testing.T) {
	s := newLedgerStore(t)
	products := &repricedProducts{ProductRepository: s.Products(), price: decimal.RequireFromString("99.00")}

	reserved, err := newLedger(3).CheckAndReserve(context.Background(), products, []domain.RequestedLine{{ProductID: 1, Quantity: 2}})

	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.True(t, decimal.RequireFromString("99.00").Equal(reserved[0].Price))
}

func TestCheckAndReserve_RetriesWhenVersionMoves(t *testing.T) {
	s := newLedgerStore(t)
	products := &contendedProducts{ProductRepository: s.Products(), misses: 2}

	reserved, err := newLedger(5).CheckAndReserve(context.Background(), products, []domain.RequestedLine{{ProductID: 1, Quantity: 4}})

	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.Equal(t, 3, products.calls)
	stock, _ := s.Stock(1)
	assert.Equal(t, 6, stock)
}

func TestCheckAndReserve_ExhaustedAttemptsIsConflict(t *testing.T) {
	s := newLedgerStore(t)
	products := &contendedProducts{ProductRepository: s.Products(), misses: 100}

	_, err := newLedger(3).CheckAndReserve(context.Background(), products, []domain.RequestedLine{{ProductID: 1, Quantity: 1}})

	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.ErrorIs(t, err, ErrReservationContention)
	assert.Equal(t, 3, products.calls)
	stock, _ := s.Stock(1)
	assert.Equal(t, 10, stock)
}

func TestCheckAndReserve_StockDrainedDuringRetry(t *testing.T) {
	s := newLedgerStore(t)
	products := &contendedProducts{ProductRepository: s.Products(), misses: 1, steal: 9}

	_, err := newLedger(5).CheckAndReserve(context.Background(), products, []domain.RequestedLine{{ProductID: 1, Quantity: 2}})

	var short *domain.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, 1, short.Shortages[0].Available)
}

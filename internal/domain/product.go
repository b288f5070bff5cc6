package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Stock   int             `json:"stockQuantity"`
	Version int64           `json:"-"`
}

// StockRecord is the slice of a product the inventory ledger reads before a conditional write.
type StockRecord struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Stock     int
	Version   int64
}

type ProductRepository interface {
	GetProductByID(ctx context.Context, id int64) (*Product, error)
	// GetStock returns the records that exist for ids; missing ids are simply absent.
	GetStock(ctx context.Context, ids []int64) ([]StockRecord, error)
	// DecrementStock applies stock -= quantity only if the row still carries expectedVersion
	// and enough stock, and returns the row as written. It returns nil when the condition did not hold.
	DecrementStock(ctx context.Context, id int64, quantity int, expectedVersion int64) (*StockRecord, error)
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Lines     []CartLine `json:"cartItems"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CartLine is a value record owned by its cart. ProductName and UnitPrice are read from the
// catalog at load time and are never persisted on the line.
type CartLine struct {
	ID          int64           `json:"id"`
	CartID      int64           `json:"-"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (c *Cart) RequestedLines() []RequestedLine {
	lines := make([]RequestedLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, RequestedLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}

type CartRepository interface {
	GetOrCreateCart(ctx context.Context, userID int64) (*Cart, error)
	// LockCart holds the cart row until the surrounding unit of work ends.
	LockCart(ctx context.Context, cartID int64) error
	// AddLine inserts a line or increments the quantity of the existing line for productID.
	AddLine(ctx context.Context, cartID, productID int64, quantity int) error
	// UpdateLineQuantity and RemoveLine return a NotFound error when lineID is not part of cartID.
	UpdateLineQuantity(ctx context.Context, cartID, lineID int64, quantity int) error
	RemoveLine(ctx context.Context, cartID, lineID int64) error
	ClearCart(ctx context.Context, cartID int64) error
}

package domain

import "context"

type PlaceOrderInput struct {
	ShippingAddress string
	PaymentRef      string
	// Items, when non-empty, replace the cart lines as the requested lines.
	Items []RequestedLine
	// IdempotencyKey is optional; a repeated key returns the order placed under it.
	IdempotencyKey string
}

type OrderUseCase interface {
	// PlaceOrder reports replayed=true when the order was placed by an earlier request with the same key.
	PlaceOrder(ctx context.Context, userID int64, input PlaceOrderInput) (order *Order, replayed bool, err error)
	GetOrder(ctx context.Context, userID, orderID int64) (*Order, error)
	ListOrders(ctx context.Context, userID int64) ([]Order, error)
	ListAllOrders(ctx context.Context) ([]Order, error)
	ListShippingAddresses(ctx context.Context, userID int64) ([]string, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*Order, error)
}

type CartUseCase interface {
	GetCart(ctx context.Context, userID int64) (*Cart, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, lineID int64, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, lineID int64) (*Cart, error)
}

// OrderEvent is published after an order-affecting transaction commits.
type OrderEvent struct {
	Type    string `json:"type"`
	OrderID int64  `json:"orderId"`
	UserID  int64  `json:"userId"`
	Status  string `json:"status"`
	Total   string `json:"totalAmount"`
}

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// IdempotencyStore remembers which order an idempotency key produced.
type IdempotencyStore interface {
	// Reserve claims key. When the key already resolved to an order it returns that order id;
	// when another request holds the key it returns a Conflict error.
	Reserve(ctx context.Context, key string) (existingOrderID int64, claimed bool, err error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

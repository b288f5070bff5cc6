package domain

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

const MaxShippingAddressLen = 512

// MaxLineQuantity bounds one line and the merged quantity of a product; it matches the INTEGER columns.
const MaxLineQuantity = math.MaxInt32

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"-"`
	User            User            `json:"user"`
	OrderDate       time.Time       `json:"orderDate"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentRef      string          `json:"paymentRef,omitempty"`
	Lines           []OrderLine     `json:"orderItems"`
}

// OrderLine carries the unit price captured when stock was reserved.
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"-"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// RequestedLine is what a caller asks the inventory ledger to reserve.
type RequestedLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// ReservedLine is a successfully reserved line with its price snapshot.
type ReservedLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// SumLines returns Σ price × quantity.
func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l.Price, l.Quantity))
	}
	return total
}

func NewPendingOrder(userID int64, shippingAddress, paymentRef string, reserved []ReservedLine, now time.Time) *Order {
	lines := make([]OrderLine, 0, len(reserved))
	for _, r := range reserved {
		lines = append(lines, OrderLine{
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			Price:       r.Price,
		})
	}
	return &Order{
		UserID:          userID,
		OrderDate:       now.UTC().Truncate(time.Microsecond),
		TotalAmount:     SumLines(lines),
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		PaymentRef:      paymentRef,
		Lines:           lines,
	}
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) (*Order, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) (*Order, error)
	ListOrdersByUserID(ctx context.Context, userID int64) ([]Order, error)
	ListAllOrders(ctx context.Context) ([]Order, error)
	ListShippingAddresses(ctx context.Context, userID int64) ([]string, error)
}

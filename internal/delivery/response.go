package delivery

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

type ErrorBody struct {
	Message   string            `json:"message"`
	Shortages []domain.Shortage `json:"shortages,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{Message: message})
}

type UserSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type ProductSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price,omitempty"`
}

type OrderItemResponse struct {
	ID       int64          `json:"id"`
	Product  ProductSummary `json:"product"`
	Quantity int            `json:"quantity"`
	Price    string         `json:"price"`
}

type OrderResponse struct {
	ID              int64               `json:"id"`
	User            UserSummary         `json:"user"`
	OrderDate       time.Time           `json:"orderDate"`
	TotalAmount     string              `json:"totalAmount"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shippingAddress"`
	PaymentRef      string              `json:"paymentRef,omitempty"`
	OrderItems      []OrderItemResponse `json:"orderItems"`
}

type CartItemResponse struct {
	ID       int64          `json:"id"`
	Product  ProductSummary `json:"product"`
	Quantity int            `json:"quantity"`
}

type CartResponse struct {
	ID          int64              `json:"id"`
	UserID      int64              `json:"userId"`
	CartItems   []CartItemResponse `json:"cartItems"`
	TotalAmount string             `json:"totalAmount"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, OrderItemResponse{
			ID:       l.ID,
			Product:  ProductSummary{ID: l.ProductID, Name: l.ProductName},
			Quantity: l.Quantity,
			Price:    money(l.Price),
		})
	}
	return OrderResponse{
		ID: o.ID,
		User: UserSummary{
			ID:        o.User.ID,
			FirstName: o.User.FirstName,
			LastName:  o.User.LastName,
			Email:     o.User.Email,
			Role:      string(o.User.Role),
		},
		OrderDate:       o.OrderDate,
		TotalAmount:     money(o.TotalAmount),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentRef:      o.PaymentRef,
		OrderItems:      items,
	}
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}

func toCartResponse(c *domain.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, CartItemResponse{
			ID:       l.ID,
			Product:  ProductSummary{ID: l.ProductID, Name: l.ProductName, Price: money(l.UnitPrice)},
			Quantity: l.Quantity,
		})
	}
	return CartResponse{
		ID:          c.ID,
		UserID:      c.UserID,
		CartItems:   items,
		TotalAmount: money(c.Total()),
	}
}

// money renders amounts with two decimals as a JSON string, never a float.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

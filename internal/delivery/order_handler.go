package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

type OrderHandler struct {
	useCase      domain.OrderUseCase
	requireAdmin gin.HandlerFunc
	log          *logrus.Logger
}

func NewOrderHandler(uc domain.OrderUseCase, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		useCase:      uc,
		requireAdmin: RequireAdmin(logger),
		log:          logger,
	}
}

// RegisterRoutes expects router to already carry the Identity middleware.
func (h *OrderHandler) RegisterRoutes(router gin.IRouter) {
	orders := router.Group("/orders")
	{
		orders.POST("", h.PlaceOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/addresses", h.ListShippingAddresses)
		orders.GET("/all", h.requireAdmin, h.ListAllOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PUT("/:id/status", h.requireAdmin, h.UpdateOrderStatus)
	}
}

type orderItemRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"min=1,max=2147483647"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest `json:"items" binding:"dive"`
	ShippingAddress string             `json:"shippingAddress"`
	PaymentRef      string             `json:"paymentRef"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	userID := userIDFrom(c)

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for place order (User: %d): %v", userID, err)
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	input := domain.PlaceOrderInput{
		ShippingAddress: req.ShippingAddress,
		PaymentRef:      req.PaymentRef,
		IdempotencyKey:  c.GetHeader(HeaderIdempotencyKey),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, domain.RequestedLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	h.log.Infof("Processing place order request for User ID: %d", userID)
	order, replayed, err := h.useCase.PlaceOrder(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if replayed {
		SuccessResponse(c, http.StatusOK, toOrderResponse(order))
		return
	}
	SuccessResponse(c, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.useCase.ListOrders(c.Request.Context(), userIDFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) ListAllOrders(c *gin.Context) {
	orders, err := h.useCase.ListAllOrders(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) ListShippingAddresses(c *gin.Context) {
	addresses, err := h.useCase.ListShippingAddresses(c.Request.Context(), userIDFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, addresses)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}
	order, err := h.useCase.GetOrder(c.Request.Context(), userIDFrom(c), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	order, err := h.useCase.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) pathID(c *gin.Context) (int64, bool) {
	return parsePathID(c, h.log, "order")
}

func parsePathID(c *gin.Context, logger *logrus.Logger, what string) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		logger.Warnf("Invalid %s ID in path: %s", what, raw)
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+what+" ID")
		return 0, false
	}
	return id, true
}

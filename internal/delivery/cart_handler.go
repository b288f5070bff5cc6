package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

type CartHandler struct {
	useCase domain.CartUseCase
	log     *logrus.Logger
}

func NewCartHandler(uc domain.CartUseCase, logger *logrus.Logger) *CartHandler {
	return &CartHandler{
		useCase: uc,
		log:     logger,
	}
}

func (h *CartHandler) RegisterRoutes(router gin.IRouter) {
	cart := router.Group("/cart")
	{
		cart.GET("", h.GetCart)
		cart.POST("/items", h.AddItem)
		cart.PUT("/items/:id", h.UpdateItem)
		cart.DELETE("/items/:id", h.RemoveItem)
	}
}

type addCartItemRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"min=1,max=2147483647"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"min=1,max=2147483647"`
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.useCase.GetCart(c.Request.Context(), userIDFrom(c))
	h.respond(c, cart, err)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	cart, err := h.useCase.AddItem(c.Request.Context(), userIDFrom(c), req.ProductID, req.Quantity)
	h.respond(c, cart, err)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	lineID, ok := parsePathID(c, h.log, "cart item")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	cart, err := h.useCase.UpdateItemQuantity(c.Request.Context(), userIDFrom(c), lineID, req.Quantity)
	h.respond(c, cart, err)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	lineID, ok := parsePathID(c, h.log, "cart item")
	if !ok {
		return
	}
	cart, err := h.useCase.RemoveItem(c.Request.Context(), userIDFrom(c), lineID)
	h.respond(c, cart, err)
}

func (h *CartHandler) respond(c *gin.Context, cart *domain.Cart, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, toCartResponse(cart))
}

package delivery

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	CORSOrigins        []string
	RateLimitPerMinute int
	RateLimitBurst     int
}

func NewRouter(orders *OrderHandler, carts *CartHandler, store Pinger, cfg RouterConfig, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), RequestID(), RequestLogger(logger), CORS(cfg.CORSOrigins))
	if cfg.RateLimitPerMinute > 0 {
		router.Use(NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst).Middleware())
	}

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Errorf("Health check failed: %v", err)
			ErrorResponse(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/")
	api.Use(Identity(logger))
	orders.RegisterRoutes(api)
	carts.RegisterRoutes(api)
	return router
}

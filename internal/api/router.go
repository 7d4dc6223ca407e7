// Package api exposes the storefront over HTTP with gin.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront-backend/internal/auth"
	"storefront-backend/internal/correlation"
	"storefront-backend/internal/shop"
)

type Deps struct {
	Logger *log.Logger

	Shop   *shop.Service
	Auth   *auth.Service
	Tokens *auth.Tokens

	CORSAllowOrigins []string
	RequestTimeout   time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	h := &handler{
		logger: d.Logger,
		shop:   d.Shop,
		auth:   d.Auth,
		tokens: d.Tokens,
	}

	r := gin.New()
	r.Use(gin.LoggerWithWriter(d.Logger.Writer()))
	r.Use(gin.CustomRecovery(h.recovered))
	r.Use(corsMiddleware(d.CORSAllowOrigins))
	r.Use(correlationID())
	if d.RequestTimeout > 0 {
		r.Use(requestTimeout(d.RequestTimeout))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/users", h.register)
		api.POST("/auth/signin", h.signIn)
		api.POST("/auth/signout", h.signOut)

		api.GET("/products", h.listProducts)
		api.GET("/products/:id", h.getProduct)
	}

	owner := api.Group("/users/:userId", auth.RequireSession(d.Tokens), auth.RequireOwner())
	{
		owner.GET("", h.getProfile)

		owner.GET("/cart", h.getCart)
		owner.DELETE("/cart", h.clearCart)
		owner.PUT("/cart/:productId", h.setCartItem)
		owner.DELETE("/cart/:productId", h.removeCartItem)

		owner.GET("/orders", h.listOrders)
		owner.POST("/orders", h.placeOrder)
		owner.GET("/orders/:orderId", h.getOrder)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", correlation.Header},
		ExposeHeaders: []string{"Location", correlation.Header},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		// cookies only travel to explicitly listed origins
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

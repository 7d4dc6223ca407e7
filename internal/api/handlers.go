package api

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/auth"
	"storefront-backend/internal/shop"
)

type handler struct {
	logger *log.Logger
	shop   *shop.Service
	auth   *auth.Service
	tokens *auth.Tokens
}

// ----- Users & sessions -----

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=4,max=72"`
	Name      string `json:"name" binding:"required"`
	Surname   string `json:"surname" binding:"required"`
	Address   string `json:"address" binding:"required"`
	Birthdate string `json:"birthdate" binding:"required"`
}

func parseBirthdate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	birthdate, err := parseBirthdate(req.Birthdate)
	if err != nil {
		h.writeError(c, apperr.Wrap(apperr.Invalid, "Birthdate must be a date (YYYY-MM-DD).", err))
		return
	}

	u, err := h.auth.Register(c.Request.Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Surname:   req.Surname,
		Address:   req.Address,
		Birthdate: birthdate.UTC(),
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		h.writeError(c, apperr.Wrap(apperr.Conflict, "Email already registered.", err))
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Location", "/api/users/"+u.ID.Hex())
	c.JSON(http.StatusCreated, gin.H{"_id": u.ID})
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}

	userID, err := h.auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.writeError(c, apperr.Wrap(apperr.Unauthenticated, "Invalid email or password.", err))
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	token, _, err := h.tokens.Issue(userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookie, token, int(h.tokens.TTL().Seconds()), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"userId": userID, "token": token})
}

func (h *handler) signOut(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.Status(http.StatusNoContent)
}

func (h *handler) getProfile(c *gin.Context) {
	u, err := h.shop.Profile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ----- Products -----

func (h *handler) listProducts(c *gin.Context) {
	products, err := h.shop.Catalog(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *handler) getProduct(c *gin.Context) {
	p, err := h.shop.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

// ----- Cart -----

type setCartItemRequest struct {
	Qty *float64 `json:"qty" binding:"required"`
}

// wholeQty accepts integral JSON numbers, 2 as well as 2.0.
func wholeQty(q float64) (int, bool) {
	if q != math.Trunc(q) || q < math.MinInt32 || q > math.MaxInt32 {
		return 0, false
	}
	return int(q), true
}

func (h *handler) getCart(c *gin.Context) {
	entries, err := h.shop.Cart(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cartItems": entries})
}

func (h *handler) setCartItem(c *gin.Context) {
	const badQty = "Quantity must be an integer greater than 0."
	var req setCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperr.Wrap(apperr.Invalid, badQty, err))
		return
	}
	qty, ok := wholeQty(*req.Qty)
	if !ok {
		h.writeError(c, apperr.New(apperr.Invalid, badQty))
		return
	}

	userID, productID := c.Param("userId"), c.Param("productId")
	entries, created, err := h.shop.SetCartItem(c.Request.Context(), userID, productID, qty)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		c.Header("Location", "/api/users/"+userID+"/cart/"+productID)
	}
	c.JSON(status, gin.H{"cartItems": entries})
}

func (h *handler) clearCart(c *gin.Context) {
	entries, err := h.shop.ClearCart(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cartItems": entries})
}

func (h *handler) removeCartItem(c *gin.Context) {
	entries, err := h.shop.RemoveCartItem(c.Request.Context(), c.Param("userId"), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cartItems": entries})
}

// ----- Orders -----

func (h *handler) listOrders(c *gin.Context) {
	orders, err := h.shop.Orders(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handler) placeOrder(c *gin.Context) {
	var req shop.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}

	userID := c.Param("userId")
	order, err := h.shop.PlaceOrder(c.Request.Context(), userID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Location", "/api/users/"+userID+"/orders/"+order.ID.Hex())
	c.JSON(http.StatusCreated, gin.H{"_id": order.ID})
}

func (h *handler) getOrder(c *gin.Context) {
	detail, err := h.shop.Order(c.Request.Context(), c.Param("userId"), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

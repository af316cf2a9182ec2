package handlers

import (
	"net/http"

	"village_market/internal/middleware"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

type CartHandler struct {
	cartService services.CartService
}

func NewCartHandler(cartService services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.cartService.Materialize(c.Request.Context(), middleware.CurrentSession(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req struct {
		ProductID uint `json:"product_id" binding:"required"`
		Quantity  int  `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	session := middleware.CurrentSession(c)
	if err := h.cartService.AddItem(c.Request.Context(), session, req.ProductID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusCreated)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	productID, ok := uintParam(c, "productId")
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	session := middleware.CurrentSession(c)
	if err := h.cartService.UpdateQuantity(c.Request.Context(), session, productID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	productID, ok := uintParam(c, "productId")
	if !ok {
		return
	}
	if err := h.cartService.RemoveItem(c.Request.Context(), middleware.CurrentSession(c), productID); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.cartService.Clear(c.Request.Context(), middleware.CurrentSession(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CartHandler) respondCart(c *gin.Context, status int) {
	cart, err := h.cartService.Materialize(c.Request.Context(), middleware.CurrentSession(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, cart)
}

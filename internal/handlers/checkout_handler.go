package handlers

import (
	"io"
	"net/http"

	"village_market/internal/middleware"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	checkoutService services.CheckoutService
}

func NewCheckoutHandler(checkoutService services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func (h *CheckoutHandler) Quote(c *gin.Context) {
	addressID, ok := intQuery(c, "address_id", 0)
	if !ok {
		return
	}
	quote, err := h.checkoutService.Quote(c.Request.Context(), middleware.CurrentSession(c), uint(addressID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// PlaceOrder ignores any client-sent amounts; everything is recomputed from
// the stored cart.
func (h *CheckoutHandler) PlaceOrder(c *gin.Context) {
	var req services.PlaceOrderInput
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		badRequest(c, "Invalid request format")
		return
	}

	order, err := h.checkoutService.PlaceOrder(c.Request.Context(), middleware.CurrentSession(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_id":        order.ID,
		"subtotal_amount": order.SubtotalAmount,
		"shipping_amount": order.ShippingAmount,
		"distance_km":     order.DistanceKm,
		"total_amount":    order.TotalAmount,
		"order":           order,
	})
}

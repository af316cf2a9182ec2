package handlers

import (
	"errors"
	"log"
	"net/http"

	"village_market/internal/middleware"
	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService services.PaymentService
}

func NewPaymentHandler(paymentService services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type orderIDRequest struct {
	OrderID string `json:"orderId"`
}

// bindOrderID answers 400 unless the body carries a well-formed order id.
func bindOrderID(c *gin.Context) (string, bool) {
	var req orderIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidOrderID(req.OrderID) {
		badRequest(c, "invalid order id")
		return "", false
	}
	return req.OrderID, true
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	orderID, ok := bindOrderID(c)
	if !ok {
		return
	}
	token, err := h.paymentService.CreateOnlinePayment(c.Request.Context(), middleware.CurrentSession(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *PaymentHandler) PayCOD(c *gin.Context) {
	orderID, ok := bindOrderID(c)
	if !ok {
		return
	}
	if err := h.paymentService.PayCOD(c.Request.Context(), middleware.CurrentSession(c), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *PaymentHandler) Status(c *gin.Context) {
	orderID, ok := bindOrderID(c)
	if !ok {
		return
	}
	result, err := h.paymentService.CheckStatus(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) Webhook(c *gin.Context) {
	var notification payment.Notification
	if err := c.ShouldBindJSON(&notification); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	err := h.paymentService.HandleNotification(c.Request.Context(), notification)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "OK"})
	case errors.Is(err, services.ErrInvalidSignature):
		log.Printf("Rejected webhook for order %q: invalid signature", notification.OrderID)
		c.JSON(http.StatusForbidden, gin.H{"message": "Invalid signature"})
	default:
		respondError(c, err)
	}
}

package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"village_market/internal/payment"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{services.ErrValidation, http.StatusBadRequest},
	{services.ErrEmptyCart, http.StatusBadRequest},
	{services.ErrAddressRequired, http.StatusBadRequest},
	{services.ErrUnknownIcon, http.StatusBadRequest},
	{services.ErrFlashSaleInvalid, http.StatusBadRequest},
	{services.ErrUnauthorized, http.StatusUnauthorized},
	{services.ErrInvalidCredentials, http.StatusUnauthorized},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrInvalidSignature, http.StatusForbidden},
	{services.ErrAmountMismatch, http.StatusForbidden},
	{services.ErrProductNotFound, http.StatusNotFound},
	{services.ErrCategoryNotFound, http.StatusNotFound},
	{services.ErrBannerNotFound, http.StatusNotFound},
	{services.ErrAddressNotFound, http.StatusNotFound},
	{services.ErrCartItemNotFound, http.StatusNotFound},
	{services.ErrOrderNotFound, http.StatusNotFound},
	{services.ErrEmailTaken, http.StatusConflict},
	{services.ErrOutOfStock, http.StatusConflict},
	{services.ErrCheckoutInProgress, http.StatusConflict},
	{services.ErrAlreadyProcessed, http.StatusConflict},
	{services.ErrPaymentInProgress, http.StatusConflict},
	{services.ErrInvalidTransition, http.StatusConflict},
}

// respondError maps service errors to status codes. Gateway failures keep
// the gateway's own message; anything unknown is logged and hidden.
func respondError(c *gin.Context, err error) {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			c.JSON(s.status, gin.H{"error": err.Error()})
			return
		}
	}

	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwErr.Message})
		return
	}

	log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// uintParam reads a numeric path parameter, answering 400 when it is not one.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

package handlers

import (
	"context"
	"net/http"

	"village_market/internal/middleware"
	"village_market/internal/models"
	"village_market/internal/repository"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderService services.OrderService
}

func NewOrderHandler(orderService services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func orderIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !models.ValidOrderID(id) {
		badRequest(c, "invalid order id")
		return "", false
	}
	return id, true
}

func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orderService.ListForUser(c.Request.Context(), middleware.CurrentSession(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.orderService.GetForUser(c.Request.Context(), middleware.CurrentSession(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Admin endpoints

func (h *OrderHandler) AdminList(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}
	orders, total, err := h.orderService.AdminList(c.Request.Context(), middleware.CurrentSession(c), repository.OrderFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

func (h *OrderHandler) AdminGet(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.orderService.AdminGet(c.Request.Context(), middleware.CurrentSession(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Ship(c *gin.Context) {
	h.transition(c, h.orderService.Ship)
}

func (h *OrderHandler) Complete(c *gin.Context) {
	h.transition(c, h.orderService.Complete)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	h.transition(c, h.orderService.Cancel)
}

type transitionFunc func(ctx context.Context, session *models.Session, id string) (*models.Order, error)

func (h *OrderHandler) transition(c *gin.Context, move transitionFunc) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := move(c.Request.Context(), middleware.CurrentSession(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

package handlers

import (
	"net/http"

	"village_market/internal/middleware"
	"village_market/internal/services"

	"github.com/gin-gonic/gin"
)

type AddressHandler struct {
	addressService services.AddressService
}

func NewAddressHandler(addressService services.AddressService) *AddressHandler {
	return &AddressHandler{addressService: addressService}
}

func (h *AddressHandler) List(c *gin.Context) {
	addresses, err := h.addressService.List(c.Request.Context(), middleware.CurrentSession(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addresses})
}

func (h *AddressHandler) Create(c *gin.Context) {
	var req services.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	address, err := h.addressService.Create(c.Request.Context(), middleware.CurrentSession(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, address)
}

func (h *AddressHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	address, err := h.addressService.Update(c.Request.Context(), middleware.CurrentSession(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

func (h *AddressHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.addressService.Delete(c.Request.Context(), middleware.CurrentSession(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AddressHandler) SetDefault(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	address, err := h.addressService.SetDefault(c.Request.Context(), middleware.CurrentSession(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"village_market/internal/models"
	"village_market/internal/repository"
	"village_market/internal/services"
	"village_market/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

const recentOrdersShown = 5

// WhatsAppHandler answers chat messages forwarded by the WhatsApp gateway:
// customers look up their orders, the shop admin lists what needs packing.
type WhatsAppHandler struct {
	orderService  services.OrderService
	messenger     services.Messenger
	adminPhone    string
	webhookSecret string
}

func NewWhatsAppHandler(orderService services.OrderService, messenger services.Messenger, adminPhone, webhookSecret string) *WhatsAppHandler {
	return &WhatsAppHandler{
		orderService:  orderService,
		messenger:     messenger,
		adminPhone:    adminPhone,
		webhookSecret: webhookSecret,
	}
}

type WebhookRequest struct {
	SenderID  string `json:"sender_id"`
	ChatID    string `json:"chat_id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Pushname  string `json:"pushname"`
	Message   struct {
		Text string `json:"text"`
		ID   string `json:"id"`
	} `json:"message"`
}

func (h *WhatsAppHandler) HandleWebhook(c *gin.Context) {
	if h.webhookSecret != "" && c.Query("secret") != h.webhookSecret {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	// from looks like 628123456789@s.whatsapp.net
	phoneNumber := req.From
	if phoneNumber == "" {
		phoneNumber = req.SenderID
	}
	phoneNumber = strings.TrimSuffix(phoneNumber, "@s.whatsapp.net")
	if phoneNumber == "" || strings.TrimSpace(req.Message.Text) == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	response := h.processCommand(c.Request.Context(), phoneNumber, req.Message.Text)
	if err := h.messenger.SendTextMessage(c.Request.Context(), phoneNumber, response); err != nil {
		log.Printf("Failed to reply to %s: %v", phoneNumber, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *WhatsAppHandler) isAdmin(phone string) bool {
	return h.adminPhone != "" && whatsapp.NormalizePhone(phone) == whatsapp.NormalizePhone(h.adminPhone)
}

func (h *WhatsAppHandler) processCommand(ctx context.Context, phone, text string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	command := parts[0]
	args := parts[1:]

	if h.isAdmin(phone) && command == "kemas" {
		return h.ordersToPack(ctx, phone)
	}

	switch command {
	case "pesanan", "status":
		return h.recentOrders(ctx, phone)
	case "cek":
		if len(args) == 0 {
			return "Format: cek <kode pesanan>"
		}
		return h.orderDetail(ctx, phone, args[0])
	}
	return h.helpMessage(phone)
}

func (h *WhatsAppHandler) recentOrders(ctx context.Context, phone string) string {
	orders, err := h.orderService.ListByPhone(ctx, phone, recentOrdersShown)
	if err != nil {
		log.Printf("Failed to list orders for %s: %v", phone, err)
		return "❌ Maaf, terjadi kesalahan. Coba lagi nanti."
	}
	if len(orders) == 0 {
		return "Belum ada pesanan dengan nomor ini."
	}

	var b strings.Builder
	b.WriteString("📋 Pesanan terakhir:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "#%s - %s - %s\n", services.OrderRef(o.ID), o.Status, services.FormatRupiah(o.TotalAmount))
	}
	b.WriteString("\nKetik: cek <kode> untuk detail.")
	return b.String()
}

func (h *WhatsAppHandler) orderDetail(ctx context.Context, phone, ref string) string {
	ref = strings.ToUpper(strings.TrimPrefix(ref, "#"))
	orders, err := h.orderService.ListByPhone(ctx, phone, 50)
	if err != nil {
		log.Printf("Failed to list orders for %s: %v", phone, err)
		return "❌ Maaf, terjadi kesalahan. Coba lagi nanti."
	}
	for _, o := range orders {
		if services.OrderRef(o.ID) != ref {
			continue
		}
		return fmt.Sprintf("📦 Pesanan #%s\nStatus: %s\nPembayaran: %s\nSubtotal: %s\nOngkir: %s (%.2f km)\nTotal: %s",
			ref, o.Status, o.PaymentStatus,
			services.FormatRupiah(o.SubtotalAmount),
			services.FormatRupiah(o.ShippingAmount), o.DistanceKm,
			services.FormatRupiah(o.TotalAmount))
	}
	return "Pesanan #" + ref + " tidak ditemukan."
}

func (h *WhatsAppHandler) ordersToPack(ctx context.Context, phone string) string {
	session := &models.Session{UserID: "whatsapp-admin", Email: phone, Role: models.Admin}
	orders, total, err := h.orderService.AdminList(ctx, session, repository.OrderFilter{
		Status: string(models.OrderToPack),
		Limit:  20,
	})
	if err != nil {
		log.Printf("Failed to list orders to pack: %v", err)
		return "❌ Gagal mengambil daftar pesanan."
	}
	if total == 0 {
		return "Tidak ada pesanan yang perlu dikemas."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 %d pesanan perlu dikemas:\n", total)
	for _, o := range orders {
		fmt.Fprintf(&b, "#%s - %s - %s\n", services.OrderRef(o.ID), o.CustomerName, o.Address)
	}
	return b.String()
}

func (h *WhatsAppHandler) helpMessage(phone string) string {
	msg := "🤖 Perintah yang tersedia:\n" +
		"• pesanan - daftar pesanan terakhir\n" +
		"• cek <kode> - detail pesanan"
	if h.isAdmin(phone) {
		msg += "\n• kemas - pesanan yang perlu dikemas"
	}
	return msg
}

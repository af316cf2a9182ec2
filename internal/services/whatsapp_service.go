package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"village_market/internal/events"
)

const (
	notificationQueue = 128
	sendTimeout       = 20 * time.Second
)

// Messenger sends a plain text chat message. *whatsapp.Client satisfies it.
type Messenger interface {
	SendTextMessage(ctx context.Context, phone, message string) error
}

// WhatsAppService turns order events into chat messages for the shop admin
// and the customer. Publish only queues; Run does the sending.
type WhatsAppService struct {
	messenger  Messenger
	adminPhone string
	queue      chan events.Event
}

func NewWhatsAppService(messenger Messenger, adminPhone string) *WhatsAppService {
	return &WhatsAppService{
		messenger:  messenger,
		adminPhone: adminPhone,
		queue:      make(chan events.Event, notificationQueue),
	}
}

func (s *WhatsAppService) Publish(ctx context.Context, event events.Event) error {
	select {
	case s.queue <- event:
	default:
		log.Printf("Warning: notification queue full, dropping %s for order %s", event.Type, event.OrderID)
	}
	return nil
}

// Run sends queued notifications until ctx is cancelled.
func (s *WhatsAppService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := s.Notify(sendCtx, event); err != nil {
				log.Printf("Failed to send WhatsApp notification for order %s: %v", event.OrderID, err)
			}
			cancel()
		}
	}
}

// Notify sends the messages for one event right away.
func (s *WhatsAppService) Notify(ctx context.Context, event events.Event) error {
	ref := OrderRef(event.OrderID)
	var adminMsg, customerMsg string

	switch event.Type {
	case events.OrderCreated:
		adminMsg = fmt.Sprintf("🛒 Pesanan baru #%s dari %s\nTotal: %s", ref, event.CustomerName, FormatRupiah(event.TotalAmount))
		customerMsg = fmt.Sprintf("Terima kasih %s, pesanan #%s sudah kami terima.\nTotal: %s\nSilakan selesaikan pembayaran.", event.CustomerName, ref, FormatRupiah(event.TotalAmount))
	case events.OrderPaid:
		adminMsg = fmt.Sprintf("✅ Pesanan #%s sudah dibayar, siap dikemas.", ref)
		customerMsg = fmt.Sprintf("Pembayaran pesanan #%s sudah kami terima. Pesanan segera dikemas.", ref)
	case events.OrderCancelled:
		adminMsg = fmt.Sprintf("❌ Pesanan #%s dibatalkan.", ref)
		customerMsg = fmt.Sprintf("Pesanan #%s dibatalkan.", ref)
	case events.OrderStatusChanged:
		customerMsg = fmt.Sprintf("Status pesanan #%s: %s", ref, event.Status)
		if event.PaymentMethod == "cod" && event.Status == "Perlu Dikemas" {
			adminMsg = fmt.Sprintf("📦 Pesanan #%s (COD) siap dikemas.", ref)
		}
	default:
		return nil
	}

	var errs []string
	if adminMsg != "" && s.adminPhone != "" {
		if err := s.messenger.SendTextMessage(ctx, s.adminPhone, adminMsg); err != nil {
			errs = append(errs, "admin: "+err.Error())
		}
	}
	if customerMsg != "" && event.WhatsAppNumber != "" {
		if err := s.messenger.SendTextMessage(ctx, event.WhatsAppNumber, customerMsg); err != nil {
			errs = append(errs, "customer: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("whatsapp send failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// OrderRef is the short reference shown to people: the first eight hex
// digits of the order id, upper-cased.
func OrderRef(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

// FormatRupiah renders 1500000 as "Rp1.500.000".
func FormatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return sign + "Rp" + b.String()
}

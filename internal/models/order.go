package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Order struct {
	ID                   string      `json:"id" gorm:"primaryKey;size:36"`
	UserID               string      `json:"user_id" gorm:"size:36;index;not null"`
	CustomerName         string      `json:"customer_name" gorm:"not null"`
	WhatsAppNumber       string      `json:"whatsapp_number" gorm:"column:whatsapp_number"`
	Address              string      `json:"address" gorm:"type:text;not null"`
	SubtotalAmount       int64       `json:"subtotal_amount" gorm:"not null"`
	ShippingAmount       int64       `json:"shipping_amount" gorm:"not null"`
	DistanceKm           float64     `json:"distance_km"`
	TotalAmount          int64       `json:"total_amount" gorm:"not null"`
	PaymentStatus        string      `json:"payment_status" gorm:"default:'pending';index"` // pending, processing, paid, cancelled
	Status               string      `json:"status" gorm:"default:'Menunggu Pembayaran';index"`
	PaymentMethod        string      `json:"payment_method"` // cod, online; empty until chosen
	PaymentToken         string      `json:"-"`
	GatewayTransactionID string      `json:"gateway_transaction_id,omitempty"`
	RemindedAt           *time.Time  `json:"-" gorm:"index"`
	Items                []OrderItem `json:"items,omitempty" gorm:"constraint:OnDelete:CASCADE;"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

var orderIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidOrderID reports whether id has the shape of an order id. Callers
// check this before touching the database.
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentCancelled  PaymentStatus = "cancelled"
)

type OrderStatus string

const (
	OrderAwaitingPayment OrderStatus = "Menunggu Pembayaran"
	OrderToPack          OrderStatus = "Perlu Dikemas"
	OrderShipped         OrderStatus = "Dikirim"
	OrderCompleted       OrderStatus = "Selesai"
	OrderCancelled       OrderStatus = "Dibatalkan"
)

// ValidOrderStatus reports whether s is one of the known lifecycle labels.
func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderAwaitingPayment, OrderToPack, OrderShipped, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

package events

import (
	"context"
	"errors"
	"time"
)

type Type string

const (
	OrderCreated       Type = "order.created"
	OrderPaid          Type = "order.paid"
	OrderCancelled     Type = "order.cancelled"
	OrderStatusChanged Type = "order.status_changed"
)

// Event is the payload published whenever an order changes state.
type Event struct {
	Type           Type      `json:"type"`
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	CustomerName   string    `json:"customer_name"`
	WhatsAppNumber string    `json:"whatsapp_number,omitempty"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	PaymentMethod  string    `json:"payment_method,omitempty"`
	TotalAmount    int64     `json:"total_amount"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

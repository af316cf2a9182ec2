package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

const sweepBatch = 100

// ReminderService nudges customers about unpaid orders and cancels the ones
// left unpaid past the expiry window.
type ReminderService interface {
	SendPaymentReminders(ctx context.Context) (int, error)
	ExpireStalePayments(ctx context.Context) (int, error)
	Run(ctx context.Context, interval time.Duration)
}

type reminderService struct {
	orderRepo   repository.OrderRepository
	lifecycle   *orderLifecycle
	gateway     payment.Gateway
	messenger   Messenger
	publisher   events.Publisher
	remindAfter time.Duration
	expireAfter time.Duration
	now         func() time.Time
}

type ReminderDeps struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	ProductRepo repository.ProductRepository
	Gateway     payment.Gateway
	Messenger   Messenger
	Publisher   events.Publisher
	RemindAfter time.Duration
	ExpireAfter time.Duration
}

func NewReminderService(deps ReminderDeps) ReminderService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &reminderService{
		orderRepo:   deps.OrderRepo,
		lifecycle:   &orderLifecycle{db: deps.DB, orderRepo: deps.OrderRepo, productRepo: deps.ProductRepo},
		gateway:     deps.Gateway,
		messenger:   deps.Messenger,
		publisher:   publisher,
		remindAfter: deps.RemindAfter,
		expireAfter: deps.ExpireAfter,
		now:         time.Now,
	}
}

// SendPaymentReminders messages each unpaid order once. The reminder is
// claimed on the order row before sending and released again if the send
// fails, so the next tick retries it.
func (s *reminderService) SendPaymentReminders(ctx context.Context) (int, error) {
	if s.messenger == nil || s.remindAfter <= 0 {
		return 0, nil
	}
	orders, err := s.orderRepo.ListAwaitingReminder(ctx, s.now().Add(-s.remindAfter), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpaid orders: %w", err)
	}

	sent := 0
	for _, order := range orders {
		rows, err := s.orderRepo.MarkReminded(ctx, order.ID, s.now())
		if err != nil {
			log.Printf("Warning: failed to claim reminder for %s: %v", order.ID, err)
			continue
		}
		if rows == 0 {
			continue
		}

		msg := fmt.Sprintf("🔔 Pesanan #%s menunggu pembayaran sebesar %s.", OrderRef(order.ID), FormatRupiah(order.TotalAmount))
		if s.expireAfter > 0 {
			deadline := order.CreatedAt.Add(s.expireAfter)
			msg += fmt.Sprintf(" Batas pembayaran %s.", deadline.Format("02/01/2006 15:04"))
		}
		if err := s.messenger.SendTextMessage(ctx, order.WhatsAppNumber, msg); err != nil {
			log.Printf("Failed to send payment reminder for %s: %v", order.ID, err)
			if err := s.orderRepo.ClearReminded(ctx, order.ID); err != nil {
				log.Printf("Warning: failed to release reminder for %s: %v", order.ID, err)
			}
			continue
		}
		sent++
	}
	return sent, nil
}

// ExpireStalePayments cancels orders still unpaid after the expiry window
// and restocks their items. Orders with an open gateway transaction are
// checked with the gateway first: a payment it reports as settled wins over
// the local deadline.
func (s *reminderService) ExpireStalePayments(ctx context.Context) (int, error) {
	if s.expireAfter <= 0 {
		return 0, nil
	}
	before := s.now().Add(-s.expireAfter)

	expired := 0
	var cursor repository.OrderCursor
	for {
		orders, err := s.orderRepo.ListPendingPayment(ctx, before, cursor, sweepBatch)
		if err != nil {
			return expired, fmt.Errorf("failed to list expired orders: %w", err)
		}
		for i := range orders {
			order := &orders[i]
			changed, err := s.expire(ctx, order)
			if err != nil {
				log.Printf("Failed to expire order %s: %v", order.ID, err)
				continue
			}
			if changed {
				expired++
				publish(ctx, s.publisher, events.OrderCancelled, order)
			}
		}
		if len(orders) < sweepBatch {
			return expired, nil
		}
		last := orders[len(orders)-1]
		cursor = repository.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

// expire cancels one overdue order unless the gateway still has a say in it.
func (s *reminderService) expire(ctx context.Context, order *models.Order) (bool, error) {
	if s.gateway == nil || order.PaymentMethod != string(models.PaymentOnline) || order.PaymentToken == "" {
		return s.lifecycle.cancelPending(ctx, order, "")
	}

	res, err := s.gateway.TransactionStatus(ctx, order.ID)
	if payment.IsNotFound(err) {
		// the payment page was opened but never used
		return s.lifecycle.cancelPending(ctx, order, "")
	}
	if err != nil {
		return false, fmt.Errorf("failed to check gateway status: %w", err)
	}

	switch outcome := payment.Resolve(res.TransactionStatus, res.FraudStatus); outcome {
	case payment.OutcomeCancelled:
		return s.lifecycle.cancelPending(ctx, order, res.TransactionID)
	case payment.OutcomePaid:
		if amount, err := payment.ParseGrossAmount(res.GrossAmount); err != nil || amount != order.TotalAmount {
			log.Printf("Warning: gateway amount %q does not match order %s total %d, leaving it pending", res.GrossAmount, order.ID, order.TotalAmount)
			return false, nil
		}
		settled, err := s.lifecycle.settle(ctx, order, outcome, res.TransactionID)
		if err != nil {
			return false, err
		}
		if settled {
			log.Printf("Order %s was paid at the gateway before expiry", order.ID)
			publish(ctx, s.publisher, events.OrderPaid, order)
		}
		return false, nil
	default:
		// still open at the gateway; its own expiry notification will cancel it
		return false, nil
	}
}

// Run sweeps on every tick until ctx is done. A non-positive interval
// disables the sweep.
func (s *reminderService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Printf("Payment sweep disabled (interval %s)", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ExpireStalePayments(ctx); err != nil {
				log.Printf("Payment expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Expired %d unpaid orders", n)
			}
			if n, err := s.SendPaymentReminders(ctx); err != nil {
				log.Printf("Payment reminder sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Sent %d payment reminders", n)
			}
		}
	}
}

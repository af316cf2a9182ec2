package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

const shippingItemName = "Ongkos Kirim"

// PaymentStatusResult is the body of the payment status endpoint.
type PaymentStatusResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type PaymentService interface {
	PayCOD(ctx context.Context, session *models.Session, orderID string) error
	CreateOnlinePayment(ctx context.Context, session *models.Session, orderID string) (string, error)
	CheckStatus(ctx context.Context, orderID string) (*PaymentStatusResult, error)
	HandleNotification(ctx context.Context, notification payment.Notification) error
}

type PaymentDeps struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	ProductRepo repository.ProductRepository
	Gateway     payment.Gateway
	ServerKey   string
	Locker      Locker
	LockTTL     time.Duration
	Publisher   events.Publisher
	// Expiry is the unpaid-order window, handed to the gateway so both
	// sides close the order at the same time
	Expiry time.Duration
}

type paymentService struct {
	orderRepo repository.OrderRepository
	lifecycle *orderLifecycle
	gateway   payment.Gateway
	serverKey string
	locker    Locker
	lockTTL   time.Duration
	publisher events.Publisher
	expiry    time.Duration
}

func NewPaymentService(deps PaymentDeps) PaymentService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &paymentService{
		orderRepo: deps.OrderRepo,
		lifecycle: &orderLifecycle{db: deps.DB, orderRepo: deps.OrderRepo, productRepo: deps.ProductRepo},
		gateway:   deps.Gateway,
		serverKey: deps.ServerKey,
		locker:    deps.Locker,
		lockTTL:   deps.LockTTL,
		publisher: publisher,
		expiry:    deps.Expiry,
	}
}

// ownedPendingOrder loads the caller's order and checks it still awaits
// payment. Other users' orders are reported as not found.
func (s *paymentService) ownedPendingOrder(ctx context.Context, session *models.Session, orderID string) (*models.Order, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.GetByIDForUser(ctx, session.UserID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.PaymentStatus != string(models.PaymentPending) {
		return nil, ErrAlreadyProcessed
	}
	return order, nil
}

func (s *paymentService) PayCOD(ctx context.Context, session *models.Session, orderID string) error {
	order, err := s.ownedPendingOrder(ctx, session, orderID)
	if err != nil {
		return err
	}

	rows, err := s.orderRepo.UpdatePaymentGuard(ctx, order.ID, models.PaymentPending, map[string]interface{}{
		"payment_status": string(models.PaymentProcessing),
		"payment_method": string(models.PaymentCOD),
		"status":         string(models.OrderToPack),
	})
	if err != nil {
		return fmt.Errorf("failed to record cash on delivery: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyProcessed
	}

	order.PaymentStatus = string(models.PaymentProcessing)
	order.PaymentMethod = string(models.PaymentCOD)
	order.Status = string(models.OrderToPack)
	log.Printf("Order %s switched to cash on delivery", order.ID)
	publish(ctx, s.publisher, events.OrderStatusChanged, order)
	return nil
}

// CreateOnlinePayment opens a gateway transaction for the order and returns
// the client token. The order id doubles as the gateway order_id, and the
// token is stored so a retry returns the same transaction.
func (s *paymentService) CreateOnlinePayment(ctx context.Context, session *models.Session, orderID string) (string, error) {
	order, err := s.ownedPendingOrder(ctx, session, orderID)
	if err != nil {
		return "", err
	}
	if order.PaymentToken != "" {
		return order.PaymentToken, nil
	}

	if s.locker != nil {
		key := "payment:" + order.ID
		token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrPaymentInProgress
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
				log.Printf("Warning: failed to release %s: %v", key, err)
			}
		}()
	}

	tx, err := s.gateway.CreateTransaction(ctx, transactionRequest(order, s.expiry))
	if err != nil {
		log.Printf("Gateway rejected order %s: %v", order.ID, err)
		return "", err
	}

	rows, err := s.orderRepo.UpdatePaymentGuard(ctx, order.ID, models.PaymentPending, map[string]interface{}{
		"payment_token":  tx.Token,
		"payment_method": string(models.PaymentOnline),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store payment token: %w", err)
	}
	if rows == 0 {
		return "", ErrAlreadyProcessed
	}
	return tx.Token, nil
}

func transactionRequest(order *models.Order, expiry time.Duration) payment.TransactionRequest {
	items := make([]payment.Item, 0, len(order.Items)+1)
	for _, it := range order.Items {
		items = append(items, payment.Item{
			ID:       strconv.FormatUint(uint64(it.ProductID), 10),
			Name:     it.ProductName,
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}
	if order.ShippingAmount > 0 {
		items = append(items, payment.Item{
			ID:       "shipping",
			Name:     shippingItemName,
			Price:    order.ShippingAmount,
			Quantity: 1,
		})
	}
	return payment.TransactionRequest{
		OrderID:       order.ID,
		GrossAmount:   order.TotalAmount,
		Items:         items,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.WhatsAppNumber,
		StartTime:     order.CreatedAt,
		Expiry:        expiry,
	}
}

// CheckStatus asks the gateway about the order's transaction and applies the
// result when the order is still pending.
func (s *paymentService) CheckStatus(ctx context.Context, orderID string) (*PaymentStatusResult, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.PaymentStatus != string(models.PaymentPending) {
		return &PaymentStatusResult{
			Success: true,
			Message: "payment already " + order.PaymentStatus,
			Status:  order.PaymentStatus,
		}, nil
	}
	if order.PaymentMethod != string(models.PaymentOnline) || order.PaymentToken == "" {
		return &PaymentStatusResult{Message: "payment has not been started", Status: order.PaymentStatus}, nil
	}

	res, err := s.gateway.TransactionStatus(ctx, order.ID)
	if err != nil {
		if payment.IsNotFound(err) {
			return &PaymentStatusResult{Message: "transaction not found at gateway", Status: order.PaymentStatus}, nil
		}
		return nil, err
	}

	if res.GrossAmount != "" {
		amount, err := payment.ParseGrossAmount(res.GrossAmount)
		if err != nil || amount != order.TotalAmount {
			log.Printf("Warning: gateway amount %q does not match order %s total %d", res.GrossAmount, order.ID, order.TotalAmount)
			return &PaymentStatusResult{Message: ErrAmountMismatch.Error(), Status: order.PaymentStatus}, nil
		}
	}

	outcome := payment.Resolve(res.TransactionStatus, res.FraudStatus)
	changed, err := s.lifecycle.settle(ctx, order, outcome, res.TransactionID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publishOutcome(ctx, order, outcome)
	} else if outcome == payment.OutcomePaid || outcome == payment.OutcomeCancelled {
		// someone else settled it first; report what is stored
		if fresh, err := s.orderRepo.GetByID(ctx, order.ID); err == nil {
			order = fresh
		}
	}

	return &PaymentStatusResult{
		Success: outcome != payment.OutcomeUnknown,
		Message: outcomeMessage(outcome, res.TransactionStatus),
		Status:  order.PaymentStatus,
	}, nil
}

// HandleNotification applies a gateway webhook. Nothing is written unless
// the signature and the amount both check out.
func (s *paymentService) HandleNotification(ctx context.Context, n payment.Notification) error {
	if !n.Verify(s.serverKey) {
		return ErrInvalidSignature
	}
	if !models.ValidOrderID(n.OrderID) {
		return ErrOrderNotFound
	}

	order, err := s.orderRepo.GetByID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to load order: %w", err)
	}

	amount, err := payment.ParseGrossAmount(n.GrossAmount)
	if err != nil || amount != order.TotalAmount {
		return ErrAmountMismatch
	}

	outcome := payment.Resolve(n.TransactionStatus, n.FraudStatus)
	changed, err := s.lifecycle.settle(ctx, order, outcome, n.TransactionID)
	if err != nil {
		return err
	}
	log.Printf("Webhook for order %s: %s/%s -> %s (changed=%t)", order.ID, n.TransactionStatus, n.FraudStatus, outcome, changed)
	if changed {
		s.publishOutcome(ctx, order, outcome)
	}
	return nil
}

func (s *paymentService) publishOutcome(ctx context.Context, order *models.Order, outcome payment.Outcome) {
	switch outcome {
	case payment.OutcomePaid:
		publish(ctx, s.publisher, events.OrderPaid, order)
	case payment.OutcomeCancelled:
		publish(ctx, s.publisher, events.OrderCancelled, order)
	}
}

func outcomeMessage(outcome payment.Outcome, transactionStatus string) string {
	switch outcome {
	case payment.OutcomePaid:
		return "payment received"
	case payment.OutcomeCancelled:
		return "payment " + transactionStatus
	case payment.OutcomePending:
		return "waiting for payment"
	}
	return "unrecognized transaction status " + transactionStatus
}

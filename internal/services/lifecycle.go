package services

import (
	"context"
	"fmt"
	"log"

	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

// orderLifecycle owns the guarded state changes shared by the payment flow,
// the admin back-office and the expiry sweep. Every change is a conditional
// update; zero rows affected means the order had already moved on.
type orderLifecycle struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
}

// settle applies a gateway outcome to a pending order and reports whether
// this call changed it. order is updated in place on change.
func (l *orderLifecycle) settle(ctx context.Context, order *models.Order, outcome payment.Outcome, transactionID string) (bool, error) {
	switch outcome {
	case payment.OutcomePaid:
		updates := map[string]interface{}{
			"payment_status": string(models.PaymentPaid),
			"status":         string(models.OrderToPack),
			"payment_method": string(models.PaymentOnline),
		}
		if transactionID != "" {
			updates["gateway_transaction_id"] = transactionID
		}
		rows, err := l.orderRepo.UpdatePaymentGuard(ctx, order.ID, models.PaymentPending, updates)
		if err != nil {
			return false, fmt.Errorf("failed to mark order paid: %w", err)
		}
		if rows == 0 {
			return false, l.latePayment(ctx, order.ID, transactionID)
		}
		order.PaymentStatus = string(models.PaymentPaid)
		order.Status = string(models.OrderToPack)
		order.PaymentMethod = string(models.PaymentOnline)
		if transactionID != "" {
			order.GatewayTransactionID = transactionID
		}
		return true, nil

	case payment.OutcomeCancelled:
		return l.cancelPending(ctx, order, transactionID)
	}
	return false, nil
}

// latePayment handles money received for an order that already left
// pending. A redelivered settlement for a paid order is ignored; anything
// else keeps the transaction id and needs a refund or manual reinstatement.
func (l *orderLifecycle) latePayment(ctx context.Context, orderID, transactionID string) error {
	current, err := l.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to reload order: %w", err)
	}
	if current.PaymentStatus == string(models.PaymentPaid) {
		return nil
	}
	if transactionID != "" && current.GatewayTransactionID != transactionID {
		if err := l.orderRepo.SetGatewayTransaction(ctx, orderID, transactionID); err != nil {
			return fmt.Errorf("failed to record transaction %s: %w", transactionID, err)
		}
	}
	log.Printf("ALERT: payment %s received for order %s in state %s/%s; refund or reinstate it manually",
		transactionID, orderID, current.PaymentStatus, current.Status)
	return nil
}

// cancelPending cancels an order whose payment never completed and puts its
// stock back.
func (l *orderLifecycle) cancelPending(ctx context.Context, order *models.Order, transactionID string) (bool, error) {
	changed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"payment_status": string(models.PaymentCancelled),
			"status":         string(models.OrderCancelled),
		}
		if transactionID != "" {
			updates["gateway_transaction_id"] = transactionID
		}
		rows, err := l.orderRepo.WithTx(tx).UpdatePaymentGuard(ctx, order.ID, models.PaymentPending, updates)
		if err != nil || rows == 0 {
			return err
		}
		changed = true
		return restock(ctx, l.productRepo.WithTx(tx), order.Items)
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	if changed {
		order.PaymentStatus = string(models.PaymentCancelled)
		order.Status = string(models.OrderCancelled)
		if transactionID != "" {
			order.GatewayTransactionID = transactionID
		}
	}
	return changed, nil
}

// moveStatus applies an order status change guarded on the current status.
// Cancelling also cancels a still-pending payment and restocks.
func (l *orderLifecycle) moveStatus(ctx context.Context, order *models.Order, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	changed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := l.orderRepo.WithTx(tx)
		rows, err := orders.UpdateStatusGuard(ctx, order.ID, from, map[string]interface{}{"status": string(to)})
		if err != nil || rows == 0 {
			return err
		}
		changed = true
		if to != models.OrderCancelled {
			return nil
		}
		if _, err := orders.UpdatePaymentGuard(ctx, order.ID, models.PaymentPending, map[string]interface{}{
			"payment_status": string(models.PaymentCancelled),
		}); err != nil {
			return err
		}
		return restock(ctx, l.productRepo.WithTx(tx), order.Items)
	})
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	if changed {
		order.Status = string(to)
		if to == models.OrderCancelled && order.PaymentStatus == string(models.PaymentPending) {
			order.PaymentStatus = string(models.PaymentCancelled)
		}
	}
	return changed, nil
}

func restock(ctx context.Context, products repository.ProductRepository, items []models.OrderItem) error {
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			continue
		}
		if err := products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

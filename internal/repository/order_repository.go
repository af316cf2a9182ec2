package repository

import (
	"context"
	"time"
	"village_market/internal/models"

	"gorm.io/gorm"
)

type OrderFilter struct {
	Status string
	Limit  int
	Offset int
}

// OrderCursor marks the last order a sweep page ended on.
type OrderCursor struct {
	CreatedAt time.Time
	ID        string
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByIDForUser(ctx context.Context, userID, id string) (*models.Order, error)
	GetByUserID(ctx context.Context, userID string) ([]models.Order, error)
	GetByWhatsAppNumbers(ctx context.Context, numbers []string, limit int) ([]models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	ListPendingPayment(ctx context.Context, createdBefore time.Time, after OrderCursor, limit int) ([]models.Order, error)
	ListAwaitingReminder(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
	MarkReminded(ctx context.Context, id string, at time.Time) (int64, error)
	ClearReminded(ctx context.Context, id string) error
	SetGatewayTransaction(ctx context.Context, id, transactionID string) error
	UpdatePaymentGuard(ctx context.Context, id string, from models.PaymentStatus, updates map[string]interface{}) (int64, error)
	UpdateStatusGuard(ctx context.Context, id string, from []models.OrderStatus, updates map[string]interface{}) (int64, error)
	WithTx(tx *gorm.DB) OrderRepository
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByIDForUser(ctx context.Context, userID, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ? AND user_id = ?", id, userID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("user_id = ?", userID).Order("created_at DESC").Find(&orders).Error
	return orders, err
}

func (r *orderRepository) GetByWhatsAppNumbers(ctx context.Context, numbers []string, limit int) ([]models.Order, error) {
	var orders []models.Order
	if len(numbers) == 0 {
		return orders, nil
	}
	err := r.db.WithContext(ctx).Where("whatsapp_number IN ?", numbers).
		Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	var orders []models.Order
	err := q.Preload("Items").Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&orders).Error
	return orders, total, err
}

// ListPendingPayment returns unpaid orders placed before createdBefore,
// oldest first, starting after the cursor. The zero cursor starts at the
// beginning.
func (r *orderRepository) ListPendingPayment(ctx context.Context, createdBefore time.Time, after OrderCursor, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Preload("Items").
		Where("payment_status = ? AND created_at < ?", string(models.PaymentPending), createdBefore).
		Where("created_at > ? OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID).
		Order("created_at ASC, id ASC").Limit(limit).Find(&orders).Error
	return orders, err
}

// ListAwaitingReminder returns unpaid orders placed before createdBefore that
// have a WhatsApp number and no reminder yet, oldest first.
func (r *orderRepository) ListAwaitingReminder(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ? AND reminded_at IS NULL AND whatsapp_number <> ''",
			string(models.PaymentPending), createdBefore).
		Order("created_at ASC").Limit(limit).Find(&orders).Error
	return orders, err
}

// MarkReminded claims the reminder for an order. Zero rows affected means it
// was already claimed or the order is no longer pending.
func (r *orderRepository) MarkReminded(ctx context.Context, id string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND reminded_at IS NULL AND payment_status = ?", id, string(models.PaymentPending)).
		Update("reminded_at", at)
	return res.RowsAffected, res.Error
}

func (r *orderRepository) ClearReminded(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("reminded_at", nil).Error
}

// SetGatewayTransaction records the gateway transaction id regardless of the
// order's state.
func (r *orderRepository) SetGatewayTransaction(ctx context.Context, id, transactionID string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("gateway_transaction_id", transactionID).Error
}

// UpdatePaymentGuard applies updates only while payment_status still equals
// from. Zero rows affected means someone else moved the order first.
func (r *orderRepository) UpdatePaymentGuard(ctx context.Context, id string, from models.PaymentStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, string(from)).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// UpdateStatusGuard applies updates only while status is one of from.
func (r *orderRepository) UpdateStatusGuard(ctx context.Context, id string, from []models.OrderStatus, updates map[string]interface{}) (int64, error) {
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, states).
		Updates(updates)
	return res.RowsAffected, res.Error
}

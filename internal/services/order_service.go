package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/repository"
	"village_market/pkg/whatsapp"

	"gorm.io/gorm"
)

type OrderService interface {
	ListForUser(ctx context.Context, session *models.Session) ([]models.Order, error)
	GetForUser(ctx context.Context, session *models.Session, id string) (*models.Order, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)

	AdminList(ctx context.Context, session *models.Session, filter repository.OrderFilter) ([]models.Order, int64, error)
	AdminGet(ctx context.Context, session *models.Session, id string) (*models.Order, error)
	Ship(ctx context.Context, session *models.Session, id string) (*models.Order, error)
	Complete(ctx context.Context, session *models.Session, id string) (*models.Order, error)
	Cancel(ctx context.Context, session *models.Session, id string) (*models.Order, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	lifecycle *orderLifecycle
	publisher events.Publisher
}

func NewOrderService(db *gorm.DB, orderRepo repository.OrderRepository, productRepo repository.ProductRepository, publisher events.Publisher) OrderService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &orderService{
		orderRepo: orderRepo,
		lifecycle: &orderLifecycle{db: db, orderRepo: orderRepo, productRepo: productRepo},
		publisher: publisher,
	}
}

func (s *orderService) ListForUser(ctx context.Context, session *models.Session) ([]models.Order, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	return s.orderRepo.GetByUserID(ctx, session.UserID)
}

func (s *orderService) GetForUser(ctx context.Context, session *models.Session, id string) (*models.Order, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	order, err := s.orderRepo.GetByIDForUser(ctx, session.UserID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ListByPhone finds orders placed with phone as the contact number, in any
// of its local spellings (08xx, 628xx, +628xx).
func (s *orderService) ListByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	normalized := whatsapp.NormalizePhone(phone)
	if !strings.HasPrefix(normalized, "62") || len(normalized) < 5 {
		return []models.Order{}, nil
	}
	variants := []string{normalized, "+" + normalized, "0" + normalized[2:]}
	return s.orderRepo.GetByWhatsAppNumbers(ctx, variants, limit)
}

func (s *orderService) AdminList(ctx context.Context, session *models.Session, filter repository.OrderFilter) ([]models.Order, int64, error) {
	if err := requireAdmin(session); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !models.ValidOrderStatus(filter.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.orderRepo.List(ctx, filter)
}

func (s *orderService) AdminGet(ctx context.Context, session *models.Session, id string) (*models.Order, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *orderService) Ship(ctx context.Context, session *models.Session, id string) (*models.Order, error) {
	return s.transition(ctx, session, id, []models.OrderStatus{models.OrderToPack}, models.OrderShipped)
}

func (s *orderService) Complete(ctx context.Context, session *models.Session, id string) (*models.Order, error) {
	return s.transition(ctx, session, id, []models.OrderStatus{models.OrderShipped}, models.OrderCompleted)
}

// Cancel is allowed until the order leaves the shop.
func (s *orderService) Cancel(ctx context.Context, session *models.Session, id string) (*models.Order, error) {
	return s.transition(ctx, session, id, []models.OrderStatus{models.OrderAwaitingPayment, models.OrderToPack}, models.OrderCancelled)
}

func (s *orderService) transition(ctx context.Context, session *models.Session, id string, from []models.OrderStatus, to models.OrderStatus) (*models.Order, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := s.lifecycle.moveStatus(ctx, order, from, to)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: %q to %q", ErrInvalidTransition, order.Status, to)
	}

	log.Printf("Order %s moved to %s by %s", order.ID, to, session.Email)
	kind := events.OrderStatusChanged
	if to == models.OrderCancelled {
		kind = events.OrderCancelled
	}
	publish(ctx, s.publisher, kind, order)
	return order, nil
}

func (s *orderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"village_market/internal/events"
	"village_market/internal/geo"
	"village_market/internal/models"
	"village_market/internal/repository"
	"village_market/internal/shipping"

	"gorm.io/gorm"
)

type PlaceOrderInput struct {
	AddressID uint `json:"address_id"`
}

// QuoteResult is what the checkout page shows before the order is placed.
type QuoteResult struct {
	Items          []models.CartLine `json:"items"`
	Address        *models.Address   `json:"address"`
	SubtotalAmount int64             `json:"subtotal_amount"`
	ShippingAmount int64             `json:"shipping_amount"`
	DistanceKm     float64           `json:"distance_km"`
	Origins        int               `json:"origins"`
	TotalAmount    int64             `json:"total_amount"`
	CanCheckout    bool              `json:"can_checkout"`
}

type CheckoutService interface {
	Quote(ctx context.Context, session *models.Session, addressID uint) (*QuoteResult, error)
	PlaceOrder(ctx context.Context, session *models.Session, input PlaceOrderInput) (*models.Order, error)
}

type checkoutService struct {
	db            *gorm.DB
	carts         CartService
	addressRepo   repository.AddressRepository
	productRepo   repository.ProductRepository
	orderRepo     repository.OrderRepository
	orderItemRepo repository.OrderItemRepository
	cartRepo      repository.CartRepository
	policy        shipping.Policy
	locker        Locker
	lockTTL       time.Duration
	publisher     events.Publisher
}

type CheckoutDeps struct {
	DB            *gorm.DB
	Carts         CartService
	AddressRepo   repository.AddressRepository
	ProductRepo   repository.ProductRepository
	OrderRepo     repository.OrderRepository
	OrderItemRepo repository.OrderItemRepository
	CartRepo      repository.CartRepository
	Policy        shipping.Policy
	Locker        Locker
	LockTTL       time.Duration
	Publisher     events.Publisher
}

func NewCheckoutService(deps CheckoutDeps) CheckoutService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &checkoutService{
		db:            deps.DB,
		carts:         deps.Carts,
		addressRepo:   deps.AddressRepo,
		productRepo:   deps.ProductRepo,
		orderRepo:     deps.OrderRepo,
		orderItemRepo: deps.OrderItemRepo,
		cartRepo:      deps.CartRepo,
		policy:        deps.Policy,
		locker:        deps.Locker,
		lockTTL:       deps.LockTTL,
		publisher:     publisher,
	}
}

// Quote prices the current cart against an address. addressID 0 means the
// default address. A missing address is not an error here; CanCheckout is
// false instead.
func (s *checkoutService) Quote(ctx context.Context, session *models.Session, addressID uint) (*QuoteResult, error) {
	cart, err := s.carts.Materialize(ctx, session)
	if err != nil {
		return nil, err
	}
	address, err := s.resolveAddress(ctx, session, addressID)
	if err != nil && !errors.Is(err, ErrAddressRequired) {
		return nil, err
	}
	return s.price(cart, address), nil
}

func (s *checkoutService) PlaceOrder(ctx context.Context, session *models.Session, input PlaceOrderInput) (*models.Order, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	if s.locker != nil {
		key := "checkout:" + session.UserID
		token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
				log.Printf("Warning: failed to release %s: %v", key, err)
			}
		}()
	}

	address, err := s.resolveAddress(ctx, session, input.AddressID)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.Materialize(ctx, session)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, ErrEmptyCart
	}
	quote := s.price(cart, address)

	order := &models.Order{
		UserID:         session.UserID,
		CustomerName:   address.Name,
		WhatsAppNumber: address.Phone,
		Address:        address.FullText(),
		SubtotalAmount: quote.SubtotalAmount,
		ShippingAmount: quote.ShippingAmount,
		DistanceKm:     quote.DistanceKm,
		TotalAmount:    quote.TotalAmount,
		PaymentStatus:  string(models.PaymentPending),
		Status:         string(models.OrderAwaitingPayment),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.productRepo.WithTx(tx)
		for _, line := range cart.Items {
			rows, err := products.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if rows == 0 {
				return fmt.Errorf("%w: %s", ErrOutOfStock, line.Name)
			}
		}

		if err := s.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(cart.Items))
		for _, line := range cart.Items {
			items = append(items, models.OrderItem{
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: line.Name,
				Quantity:    line.Quantity,
				Price:       line.UnitPrice,
				ImageURL:    line.ImageURL,
			})
		}
		if err := s.orderItemRepo.WithTx(tx).CreateBatch(ctx, items); err != nil {
			return err
		}
		order.Items = items

		return s.cartRepo.WithTx(tx).ClearByUserID(ctx, session.UserID)
	})
	if err != nil {
		if errors.Is(err, ErrOutOfStock) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	log.Printf("Order %s placed by %s: total=%d", order.ID, session.UserID, order.TotalAmount)
	publish(ctx, s.publisher, events.OrderCreated, order)
	return order, nil
}

func (s *checkoutService) resolveAddress(ctx context.Context, session *models.Session, addressID uint) (*models.Address, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	var (
		address *models.Address
		err     error
	)
	if addressID == 0 {
		address, err = s.addressRepo.GetDefault(ctx, session.UserID)
	} else {
		address, err = s.addressRepo.GetByIDForUser(ctx, session.UserID, addressID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressRequired
		}
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	return address, nil
}

// price recomputes every amount from the materialized cart. Shipping is
// charged per distinct product origin.
func (s *checkoutService) price(cart *Cart, address *models.Address) *QuoteResult {
	q := &QuoteResult{
		Items:          cart.Items,
		Address:        address,
		SubtotalAmount: cart.Subtotal,
	}
	if address != nil && !cart.Empty() {
		origins := make([]geo.Point, 0, len(cart.Items))
		for _, line := range cart.Items {
			origins = append(origins, geo.Point{Latitude: line.ProductLatitude, Longitude: line.ProductLongitude})
		}
		dest := geo.Point{Latitude: address.Latitude, Longitude: address.Longitude}
		shipQuote := s.policy.Quote(dest, origins)
		q.ShippingAmount = shipQuote.Fee
		q.DistanceKm = shipQuote.DistanceKm
		q.Origins = shipQuote.Origins
		q.CanCheckout = true
	}
	q.TotalAmount = q.SubtotalAmount + q.ShippingAmount
	return q
}

func publish(ctx context.Context, publisher events.Publisher, kind events.Type, order *models.Order) {
	if publisher == nil {
		return
	}
	event := events.Event{
		Type:           kind,
		OrderID:        order.ID,
		UserID:         order.UserID,
		CustomerName:   order.CustomerName,
		WhatsAppNumber: order.WhatsAppNumber,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		PaymentMethod:  order.PaymentMethod,
		TotalAmount:    order.TotalAmount,
		OccurredAt:     time.Now(),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Printf("Warning: failed to publish %s for order %s: %v", kind, order.ID, err)
	}
}

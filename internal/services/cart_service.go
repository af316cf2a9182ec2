package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"village_market/internal/models"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

// Cart is the materialized view of a user's cart lines.
type Cart struct {
	Items     []models.CartLine `json:"items"`
	Subtotal  int64             `json:"subtotal"`
	ItemCount int               `json:"item_count"`
}

func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

type CartService interface {
	AddItem(ctx context.Context, session *models.Session, productID uint, quantity int) error
	UpdateQuantity(ctx context.Context, session *models.Session, productID uint, quantity int) error
	RemoveItem(ctx context.Context, session *models.Session, productID uint) error
	Clear(ctx context.Context, session *models.Session) error
	Materialize(ctx context.Context, session *models.Session) (*Cart, error)
}

type cartService struct {
	cartRepo      repository.CartRepository
	productRepo   repository.ProductRepository
	flashSaleRepo repository.FlashSaleRepository
	now           func() time.Time
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, flashSaleRepo repository.FlashSaleRepository) CartService {
	return &cartService{
		cartRepo:      cartRepo,
		productRepo:   productRepo,
		flashSaleRepo: flashSaleRepo,
		now:           time.Now,
	}
}

func (s *cartService) AddItem(ctx context.Context, session *models.Session, productID uint, quantity int) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return err
	}
	inCart, err := s.cartRepo.GetQuantity(ctx, session.UserID, productID)
	if err != nil {
		return err
	}
	if inCart+quantity > product.Stock {
		return fmt.Errorf("%w: only %d left of %s, %d already in cart", ErrOutOfStock, product.Stock, product.Name, inCart)
	}
	return s.cartRepo.AddQuantity(ctx, session.UserID, productID, quantity)
}

func (s *cartService) activeProduct(ctx context.Context, productID uint) (*models.Product, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// UpdateQuantity sets the line's quantity; zero or less removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, session *models.Session, productID uint, quantity int) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if quantity <= 0 {
		return s.cartRepo.Remove(ctx, session.UserID, productID)
	}
	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return err
	}
	if quantity > product.Stock {
		return fmt.Errorf("%w: only %d left of %s", ErrOutOfStock, product.Stock, product.Name)
	}
	rows, err := s.cartRepo.SetQuantity(ctx, session.UserID, productID, quantity)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (s *cartService) RemoveItem(ctx context.Context, session *models.Session, productID uint) error {
	if err := requireSession(session); err != nil {
		return err
	}
	return s.cartRepo.Remove(ctx, session.UserID, productID)
}

func (s *cartService) Clear(ctx context.Context, session *models.Session) error {
	if err := requireSession(session); err != nil {
		return err
	}
	return s.cartRepo.ClearByUserID(ctx, session.UserID)
}

// Materialize joins every cart line to its product. Lines whose product was
// deleted or deactivated are left out.
func (s *cartService) Materialize(ctx context.Context, session *models.Session) (*Cart, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	items, err := s.cartRepo.GetByUserID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	prices, err := salePrices(ctx, s.flashSaleRepo, ids, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load flash sale prices: %w", err)
	}

	cart := &Cart{Items: make([]models.CartLine, 0, len(items))}
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive || it.Quantity <= 0 {
			continue
		}
		line := models.CartLine{
			ProductID:        p.ID,
			Name:             p.Name,
			UnitPrice:        p.Price,
			Quantity:         it.Quantity,
			ImageURL:         p.ImageURL,
			ProductLatitude:  p.Latitude,
			ProductLongitude: p.Longitude,
		}
		if price, ok := prices[p.ID]; ok && price < p.Price {
			line.UnitPrice = price
			line.OnFlashSale = true
		}
		line.LineTotal = line.UnitPrice * int64(line.Quantity)

		cart.Items = append(cart.Items, line)
		cart.Subtotal += line.LineTotal
		cart.ItemCount += line.Quantity
	}
	return cart, nil
}

package repository

import (
	"context"
	"errors"
	"village_market/internal/models"

	"gorm.io/gorm"
)

type CartRepository interface {
	GetByUserID(ctx context.Context, userID string) ([]models.CartItem, error)
	GetQuantity(ctx context.Context, userID string, productID uint) (int, error)
	AddQuantity(ctx context.Context, userID string, productID uint, quantity int) error
	SetQuantity(ctx context.Context, userID string, productID uint, quantity int) (int64, error)
	Remove(ctx context.Context, userID string, productID uint) error
	ClearByUserID(ctx context.Context, userID string) error
	WithTx(tx *gorm.DB) CartRepository
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) WithTx(tx *gorm.DB) CartRepository {
	return &cartRepository{db: tx}
}

func (r *cartRepository) GetByUserID(ctx context.Context, userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

// GetQuantity returns how many of the product sit in the cart, zero when none.
func (r *cartRepository) GetQuantity(ctx context.Context, userID string, productID uint) (int, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).Limit(1).Find(&items).Error
	if err != nil || len(items) == 0 {
		return 0, err
	}
	return items[0].Quantity, nil
}

// AddQuantity merges into the existing line for the product or creates one.
func (r *cartRepository) AddQuantity(ctx context.Context, userID string, productID uint, quantity int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CartItem
		err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&existing).Error
		if err == nil {
			existing.Quantity += quantity
			return tx.Save(&existing).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}).Error
	})
}

func (r *cartRepository) SetQuantity(ctx context.Context, userID string, productID uint, quantity int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	return res.RowsAffected, res.Error
}

func (r *cartRepository) Remove(ctx context.Context, userID string, productID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{}).Error
}

func (r *cartRepository) ClearByUserID(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}

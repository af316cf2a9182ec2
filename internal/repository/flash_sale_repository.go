package repository

import (
	"context"
	"time"
	"village_market/internal/models"

	"gorm.io/gorm"
)

type FlashSaleRepository interface {
	Create(ctx context.Context, sale *models.FlashSale) error
	Delete(ctx context.Context, id uint) error
	GetActive(ctx context.Context, at time.Time) ([]models.FlashSale, error)
	GetActiveForProducts(ctx context.Context, productIDs []uint, at time.Time) ([]models.FlashSale, error)
}

type flashSaleRepository struct {
	db *gorm.DB
}

func NewFlashSaleRepository(db *gorm.DB) FlashSaleRepository {
	return &flashSaleRepository{db: db}
}

func (r *flashSaleRepository) Create(ctx context.Context, sale *models.FlashSale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *flashSaleRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.FlashSale{}, id).Error
}

func (r *flashSaleRepository) GetActive(ctx context.Context, at time.Time) ([]models.FlashSale, error) {
	var sales []models.FlashSale
	err := r.db.WithContext(ctx).Preload("Product").
		Where("starts_at <= ? AND ends_at > ?", at, at).
		Order("ends_at ASC").Find(&sales).Error
	return sales, err
}

func (r *flashSaleRepository) GetActiveForProducts(ctx context.Context, productIDs []uint, at time.Time) ([]models.FlashSale, error) {
	var sales []models.FlashSale
	if len(productIDs) == 0 {
		return sales, nil
	}
	err := r.db.WithContext(ctx).
		Where("product_id IN ? AND starts_at <= ? AND ends_at > ?", productIDs, at, at).
		Find(&sales).Error
	return sales, err
}

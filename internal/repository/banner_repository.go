package repository

import (
	"context"
	"village_market/internal/models"

	"gorm.io/gorm"
)

type BannerRepository interface {
	Create(ctx context.Context, banner *models.Banner) error
	GetByID(ctx context.Context, id uint) (*models.Banner, error)
	GetAll(ctx context.Context) ([]models.Banner, error)
	GetActive(ctx context.Context) ([]models.Banner, error)
	Update(ctx context.Context, banner *models.Banner) error
	Delete(ctx context.Context, id uint) error
}

type bannerRepository struct {
	db *gorm.DB
}

func NewBannerRepository(db *gorm.DB) BannerRepository {
	return &bannerRepository{db: db}
}

func (r *bannerRepository) Create(ctx context.Context, banner *models.Banner) error {
	return r.db.WithContext(ctx).Create(banner).Error
}

func (r *bannerRepository) GetByID(ctx context.Context, id uint) (*models.Banner, error) {
	var banner models.Banner
	err := r.db.WithContext(ctx).First(&banner, id).Error
	if err != nil {
		return nil, err
	}
	return &banner, nil
}

func (r *bannerRepository) GetAll(ctx context.Context) ([]models.Banner, error) {
	var banners []models.Banner
	err := r.db.WithContext(ctx).Order("position ASC, id ASC").Find(&banners).Error
	return banners, err
}

func (r *bannerRepository) GetActive(ctx context.Context) ([]models.Banner, error) {
	var banners []models.Banner
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("position ASC, id ASC").Find(&banners).Error
	return banners, err
}

func (r *bannerRepository) Update(ctx context.Context, banner *models.Banner) error {
	return r.db.WithContext(ctx).Save(banner).Error
}

func (r *bannerRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Banner{}, id).Error
}

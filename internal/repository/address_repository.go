package repository

import (
	"context"
	"village_market/internal/models"

	"gorm.io/gorm"
)

type AddressRepository interface {
	Create(ctx context.Context, address *models.Address) error
	GetByIDForUser(ctx context.Context, userID string, id uint) (*models.Address, error)
	GetByUserID(ctx context.Context, userID string) ([]models.Address, error)
	GetDefault(ctx context.Context, userID string) (*models.Address, error)
	CountByUserID(ctx context.Context, userID string) (int64, error)
	Update(ctx context.Context, address *models.Address) error
	Delete(ctx context.Context, userID string, id uint) (int64, error)
	ClearDefault(ctx context.Context, userID string) error
	MarkDefault(ctx context.Context, userID string, id uint) (int64, error)
	WithTx(tx *gorm.DB) AddressRepository
}

type addressRepository struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) AddressRepository {
	return &addressRepository{db: db}
}

func (r *addressRepository) WithTx(tx *gorm.DB) AddressRepository {
	return &addressRepository{db: tx}
}

func (r *addressRepository) Create(ctx context.Context, address *models.Address) error {
	return r.db.WithContext(ctx).Create(address).Error
}

func (r *addressRepository) GetByIDForUser(ctx context.Context, userID string, id uint) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}

func (r *addressRepository) GetByUserID(ctx context.Context, userID string) ([]models.Address, error) {
	var addresses []models.Address
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_default DESC, created_at ASC").Find(&addresses).Error
	return addresses, err
}

func (r *addressRepository) GetDefault(ctx context.Context, userID string) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).Where("user_id = ? AND is_default = ?", userID, true).First(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}

func (r *addressRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Address{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *addressRepository) Update(ctx context.Context, address *models.Address) error {
	return r.db.WithContext(ctx).Save(address).Error
}

func (r *addressRepository) Delete(ctx context.Context, userID string, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Address{})
	return res.RowsAffected, res.Error
}

func (r *addressRepository) ClearDefault(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&models.Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func (r *addressRepository) MarkDefault(ctx context.Context, userID string, id uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Address{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_default", true)
	return res.RowsAffected, res.Error
}

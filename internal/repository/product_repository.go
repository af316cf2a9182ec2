package repository

import (
	"context"
	"strings"
	"time"
	"village_market/internal/models"

	"gorm.io/gorm"
)

type ProductFilter struct {
	CategoryID uint
	Query      string
	Limit      int
	Offset     int
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	SuggestNames(ctx context.Context, query string, limit int) ([]string, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uint) error
	DecrementStock(ctx context.Context, id uint, quantity int) (int64, error)
	RestoreStock(ctx context.Context, id uint, quantity int) error
	WithTx(tx *gorm.DB) ProductRepository
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepository{db: tx}
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Preload("Category").First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *productRepository) List(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{}).Where("is_active = ?", true)
	if filter.CategoryID != 0 {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if s := strings.TrimSpace(filter.Query); s != "" {
		q = q.Where("LOWER(name) LIKE ?", likePattern(s))
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	var products []models.Product
	err := q.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&products).Error
	return products, err
}

func (r *productRepository) SuggestNames(ctx context.Context, query string, limit int) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("is_active = ? AND LOWER(name) LIKE ?", true, likePattern(query)).
		Order("name ASC").Limit(limit).
		Pluck("name", &names).Error
	return names, err
}

func (r *productRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Product{}, id).Error
}

// DecrementStock takes quantity units only when that many are left and
// reports the number of rows changed (0 or 1).
func (r *productRepository) DecrementStock(ctx context.Context, id uint, quantity int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	return res.RowsAffected, res.Error
}

// RestoreStock puts units back, used when an order is cancelled. Products
// deleted in the meantime are restored too.
func (r *productRepository) RestoreStock(ctx context.Context, id uint, quantity int) error {
	return r.db.WithContext(ctx).Unscoped().Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", quantity)).Error
}

func likePattern(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("%", "", "_", "").Replace(s)
	return "%" + s + "%"
}

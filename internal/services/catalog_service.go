package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"village_market/internal/geo"
	"village_market/internal/models"
	"village_market/internal/redis"
	"village_market/internal/repository"

	"gorm.io/gorm"
)

const (
	categoriesCacheKey = "catalog:categories"
	bannersCacheKey    = "catalog:banners"
	suggestionLimit    = 5
)

// ProductView is a product with its price for right now.
type ProductView struct {
	models.Product
	EffectivePrice int64 `json:"effective_price"`
	OnFlashSale    bool  `json:"on_flash_sale"`
}

type ProductInput struct {
	CategoryID  uint     `json:"category_id" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Price       int64    `json:"price" binding:"required,gt=0"`
	Stock       int      `json:"stock" binding:"gte=0"`
	ImageURL    string   `json:"image_url"`
	Latitude    *float64 `json:"latitude" binding:"required"`
	Longitude   *float64 `json:"longitude" binding:"required"`
	IsActive    *bool    `json:"is_active"`
}

type CategoryInput struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug"`
	Icon string `json:"icon" binding:"required"`
}

type BannerInput struct {
	Title    string `json:"title" binding:"required"`
	ImageURL string `json:"image_url" binding:"required"`
	LinkURL  string `json:"link_url"`
	Position int    `json:"position"`
	IsActive *bool  `json:"is_active"`
}

type FlashSaleInput struct {
	ProductID uint      `json:"product_id" binding:"required"`
	SalePrice int64     `json:"sale_price" binding:"required,gt=0"`
	StartsAt  time.Time `json:"starts_at" binding:"required"`
	EndsAt    time.Time `json:"ends_at" binding:"required"`
}

type CatalogService interface {
	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]ProductView, error)
	GetProduct(ctx context.Context, id uint) (*ProductView, error)
	SuggestProducts(ctx context.Context, query string) ([]string, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListActiveBanners(ctx context.Context) ([]models.Banner, error)
	ListFlashSales(ctx context.Context) ([]models.FlashSale, error)

	CreateProduct(ctx context.Context, session *models.Session, input ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, session *models.Session, id uint, input ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, session *models.Session, id uint) error
	CreateCategory(ctx context.Context, session *models.Session, input CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, session *models.Session, id uint, input CategoryInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, session *models.Session, id uint) error
	ListBanners(ctx context.Context, session *models.Session) ([]models.Banner, error)
	CreateBanner(ctx context.Context, session *models.Session, input BannerInput) (*models.Banner, error)
	UpdateBanner(ctx context.Context, session *models.Session, id uint, input BannerInput) (*models.Banner, error)
	DeleteBanner(ctx context.Context, session *models.Session, id uint) error
	CreateFlashSale(ctx context.Context, session *models.Session, input FlashSaleInput) (*models.FlashSale, error)
	DeleteFlashSale(ctx context.Context, session *models.Session, id uint) error
}

type catalogService struct {
	productRepo   repository.ProductRepository
	categoryRepo  repository.CategoryRepository
	bannerRepo    repository.BannerRepository
	flashSaleRepo repository.FlashSaleRepository
	cache         Cache
	cacheTTL      time.Duration
	now           func() time.Time
}

func NewCatalogService(
	productRepo repository.ProductRepository,
	categoryRepo repository.CategoryRepository,
	bannerRepo repository.BannerRepository,
	flashSaleRepo repository.FlashSaleRepository,
	cache Cache,
	cacheTTL time.Duration,
) CatalogService {
	return &catalogService{
		productRepo:   productRepo,
		categoryRepo:  categoryRepo,
		bannerRepo:    bannerRepo,
		flashSaleRepo: flashSaleRepo,
		cache:         cache,
		cacheTTL:      cacheTTL,
		now:           time.Now,
	}
}

func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]ProductView, error) {
	products, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return s.withPrices(ctx, products)
}

func (s *catalogService) GetProduct(ctx context.Context, id uint) (*ProductView, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}
	views, err := s.withPrices(ctx, []models.Product{*product})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *catalogService) SuggestProducts(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return []string{}, nil
	}
	return s.productRepo.SuggestNames(ctx, query, suggestionLimit)
}

func (s *catalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if s.readCache(ctx, categoriesCacheKey, &categories) {
		return categories, nil
	}
	categories, err := s.categoryRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	s.writeCache(ctx, categoriesCacheKey, categories)
	return categories, nil
}

func (s *catalogService) ListActiveBanners(ctx context.Context) ([]models.Banner, error) {
	var banners []models.Banner
	if s.readCache(ctx, bannersCacheKey, &banners) {
		return banners, nil
	}
	banners, err := s.bannerRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list banners: %w", err)
	}
	s.writeCache(ctx, bannersCacheKey, banners)
	return banners, nil
}

func (s *catalogService) ListFlashSales(ctx context.Context) ([]models.FlashSale, error) {
	sales, err := s.flashSaleRepo.GetActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list flash sales: %w", err)
	}
	out := sales[:0]
	for _, sale := range sales {
		if sale.Product != nil && sale.Product.IsActive {
			out = append(out, sale)
		}
	}
	return out, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, session *models.Session, input ProductInput) (*models.Product, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	product := &models.Product{IsActive: true}
	if err := s.applyProductInput(ctx, product, input); err != nil {
		return nil, err
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, session *models.Session, id uint, input ProductInput) (*models.Product, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if err := s.applyProductInput(ctx, product, input); err != nil {
		return nil, err
	}
	product.Category = nil
	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, session *models.Session, id uint) error {
	if err := requireAdmin(session); err != nil {
		return err
	}
	if _, err := s.productRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	return s.productRepo.Delete(ctx, id)
}

func (s *catalogService) applyProductInput(ctx context.Context, product *models.Product, input ProductInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if input.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrValidation)
	}
	if input.Latitude == nil || input.Longitude == nil {
		return fmt.Errorf("%w: latitude and longitude are required", ErrValidation)
	}
	origin := geo.Point{Latitude: *input.Latitude, Longitude: *input.Longitude}
	if !origin.Valid() {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if _, err := s.categoryRepo.GetByID(ctx, input.CategoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}

	product.CategoryID = input.CategoryID
	product.Name = name
	product.Description = strings.TrimSpace(input.Description)
	product.Price = input.Price
	product.Stock = input.Stock
	product.ImageURL = strings.TrimSpace(input.ImageURL)
	product.Latitude = origin.Latitude
	product.Longitude = origin.Longitude
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	return nil
}

func (s *catalogService) CreateCategory(ctx context.Context, session *models.Session, input CategoryInput) (*models.Category, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	category := &models.Category{}
	if err := applyCategoryInput(category, input); err != nil {
		return nil, err
	}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	s.invalidate(ctx, categoriesCacheKey)
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, session *models.Session, id uint, input CategoryInput) (*models.Category, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	if err := applyCategoryInput(category, input); err != nil {
		return nil, err
	}
	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	s.invalidate(ctx, categoriesCacheKey)
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, session *models.Session, id uint) error {
	if err := requireAdmin(session); err != nil {
		return err
	}
	if _, err := s.categoryRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	if err := s.categoryRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	s.invalidate(ctx, categoriesCacheKey)
	return nil
}

func applyCategoryInput(category *models.Category, input CategoryInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	icon, err := models.ParseCategoryIcon(strings.TrimSpace(input.Icon))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownIcon, input.Icon)
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return fmt.Errorf("%w: slug is empty", ErrValidation)
	}

	category.Name = name
	category.Slug = slug
	category.Icon = icon
	return nil
}

func (s *catalogService) ListBanners(ctx context.Context, session *models.Session) ([]models.Banner, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	return s.bannerRepo.GetAll(ctx)
}

func (s *catalogService) CreateBanner(ctx context.Context, session *models.Session, input BannerInput) (*models.Banner, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	banner := &models.Banner{IsActive: true}
	if err := applyBannerInput(banner, input); err != nil {
		return nil, err
	}
	if err := s.bannerRepo.Create(ctx, banner); err != nil {
		return nil, fmt.Errorf("failed to create banner: %w", err)
	}
	s.invalidate(ctx, bannersCacheKey)
	return banner, nil
}

func (s *catalogService) UpdateBanner(ctx context.Context, session *models.Session, id uint, input BannerInput) (*models.Banner, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	banner, err := s.bannerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBannerNotFound
		}
		return nil, err
	}
	if err := applyBannerInput(banner, input); err != nil {
		return nil, err
	}
	if err := s.bannerRepo.Update(ctx, banner); err != nil {
		return nil, fmt.Errorf("failed to update banner: %w", err)
	}
	s.invalidate(ctx, bannersCacheKey)
	return banner, nil
}

func (s *catalogService) DeleteBanner(ctx context.Context, session *models.Session, id uint) error {
	if err := requireAdmin(session); err != nil {
		return err
	}
	if _, err := s.bannerRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBannerNotFound
		}
		return err
	}
	if err := s.bannerRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete banner: %w", err)
	}
	s.invalidate(ctx, bannersCacheKey)
	return nil
}

func applyBannerInput(banner *models.Banner, input BannerInput) error {
	title := strings.TrimSpace(input.Title)
	image := strings.TrimSpace(input.ImageURL)
	if title == "" || image == "" {
		return fmt.Errorf("%w: title and image_url are required", ErrValidation)
	}
	banner.Title = title
	banner.ImageURL = image
	banner.LinkURL = strings.TrimSpace(input.LinkURL)
	banner.Position = input.Position
	if input.IsActive != nil {
		banner.IsActive = *input.IsActive
	}
	return nil
}

func (s *catalogService) CreateFlashSale(ctx context.Context, session *models.Session, input FlashSaleInput) (*models.FlashSale, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	if !input.EndsAt.After(input.StartsAt) {
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", ErrFlashSaleInvalid)
	}
	product, err := s.productRepo.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if input.SalePrice <= 0 || input.SalePrice >= product.Price {
		return nil, fmt.Errorf("%w: sale price must be below the regular price %d", ErrFlashSaleInvalid, product.Price)
	}

	sale := &models.FlashSale{
		ProductID: input.ProductID,
		SalePrice: input.SalePrice,
		StartsAt:  input.StartsAt,
		EndsAt:    input.EndsAt,
	}
	if err := s.flashSaleRepo.Create(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to create flash sale: %w", err)
	}
	return sale, nil
}

func (s *catalogService) DeleteFlashSale(ctx context.Context, session *models.Session, id uint) error {
	if err := requireAdmin(session); err != nil {
		return err
	}
	return s.flashSaleRepo.Delete(ctx, id)
}

func (s *catalogService) withPrices(ctx context.Context, products []models.Product) ([]ProductView, error) {
	ids := make([]uint, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	prices, err := salePrices(ctx, s.flashSaleRepo, ids, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load flash sale prices: %w", err)
	}

	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		view := ProductView{Product: p, EffectivePrice: p.Price}
		if price, ok := prices[p.ID]; ok && price < p.Price {
			view.EffectivePrice = price
			view.OnFlashSale = true
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *catalogService) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.GetTempData(ctx, key, dest)
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("Warning: cache read %s failed: %v", key, err)
	}
	return err == nil
}

func (s *catalogService) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetTempData(ctx, key, value, s.cacheTTL); err != nil {
		log.Printf("Warning: cache write %s failed: %v", key, err)
	}
}

func (s *catalogService) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteTempData(ctx, key); err != nil {
		log.Printf("Warning: cache invalidate %s failed: %v", key, err)
	}
}

// Slugify lowercases s and joins its letter/digit runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

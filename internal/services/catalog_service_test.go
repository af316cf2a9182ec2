package services

import (
	"context"
	"testing"
	"time"

	"village_market/internal/models"
	"village_market/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCatalogForTest(t *testing.T) (CatalogService, *gorm.DB, *memStore) {
	db := newTestDB(t)
	store := newMemStore()
	svc := NewCatalogService(
		repository.NewProductRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewBannerRepository(db),
		repository.NewFlashSaleRepository(db),
		store,
		time.Minute,
	)
	return svc, db, store
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "rumah-tangga", Slugify("Rumah Tangga"))
	assert.Equal(t, "buah-sayur", Slugify("  Buah & Sayur!! "))
	assert.Equal(t, "", Slugify("***"))
}

func TestCatalog_CategoryIconIsValidated(t *testing.T) {
	catalog, _, _ := newCatalogForTest(t)
	ctx := context.Background()
	admin := &models.Session{UserID: "admin", Role: models.Admin}

	_, err := catalog.CreateCategory(ctx, admin, CategoryInput{Name: "Obat", Icon: "pill"})
	assert.ErrorIs(t, err, ErrUnknownIcon)

	category, err := catalog.CreateCategory(ctx, admin, CategoryInput{Name: "Rumah Tangga", Icon: "household"})
	require.NoError(t, err)
	assert.Equal(t, "rumah-tangga", category.Slug)
	assert.Equal(t, models.IconHousehold, category.Icon)

	_, err = catalog.CreateCategory(ctx, &models.Session{UserID: "u", Role: models.Customer}, CategoryInput{Name: "X", Icon: "other"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCatalog_CategoryCacheInvalidation(t *testing.T) {
	catalog, _, store := newCatalogForTest(t)
	ctx := context.Background()
	admin := &models.Session{UserID: "admin", Role: models.Admin}

	first, err := catalog.ListCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, first)

	var cached []models.Category
	require.NoError(t, store.GetTempData(ctx, categoriesCacheKey, &cached))

	_, err = catalog.CreateCategory(ctx, admin, CategoryInput{Name: "Sayuran", Icon: "vegetables"})
	require.NoError(t, err)

	second, err := catalog.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 1)
}

func TestCatalog_ProductsCarryFlashSalePrice(t *testing.T) {
	catalog, db, _ := newCatalogForTest(t)
	ctx := context.Background()
	admin := &models.Session{UserID: "admin", Role: models.Admin}

	category, err := catalog.CreateCategory(ctx, admin, CategoryInput{Name: "Buah", Icon: "fruits"})
	require.NoError(t, err)
	product, err := catalog.CreateProduct(ctx, admin, ProductInput{
		CategoryID: category.ID,
		Name:       "Pisang Ambon",
		Price:      25000,
		Stock:      10,
		Latitude:   floatPtr(villageLat),
		Longitude:  floatPtr(villageLng),
	})
	require.NoError(t, err)
	assert.True(t, product.IsActive)
	seedProduct(t, db, "Pepaya", 15000, 4, villageLat, villageLng)

	now := time.Now()
	_, err = catalog.CreateFlashSale(ctx, admin, FlashSaleInput{ProductID: product.ID, SalePrice: 30000, StartsAt: now, EndsAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrFlashSaleInvalid)
	_, err = catalog.CreateFlashSale(ctx, admin, FlashSaleInput{ProductID: product.ID, SalePrice: 20000, StartsAt: now, EndsAt: now})
	assert.ErrorIs(t, err, ErrFlashSaleInvalid)
	_, err = catalog.CreateFlashSale(ctx, admin, FlashSaleInput{ProductID: product.ID, SalePrice: 20000, StartsAt: now.Add(-time.Minute), EndsAt: now.Add(time.Hour)})
	require.NoError(t, err)

	view, err := catalog.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), view.EffectivePrice)
	assert.True(t, view.OnFlashSale)

	views, err := catalog.ListProducts(ctx, repository.ProductFilter{Query: "PISANG"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(20000), views[0].EffectivePrice)

	sales, err := catalog.ListFlashSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, product.ID, sales[0].ProductID)

	names, err := catalog.SuggestProducts(ctx, "pa")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pepaya"}, names)
}

func TestCatalog_DeletedProductIsHidden(t *testing.T) {
	catalog, db, _ := newCatalogForTest(t)
	ctx := context.Background()
	admin := &models.Session{UserID: "admin", Role: models.Admin}
	product := seedProduct(t, db, "Cabai", 12000, 4, villageLat, villageLng)

	require.NoError(t, catalog.DeleteProduct(ctx, admin, product.ID))
	_, err := catalog.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, catalog.DeleteProduct(ctx, admin, product.ID), ErrProductNotFound)
}

func floatPtr(v float64) *float64 { return &v }

func TestCatalog_ProductNeedsOrigin(t *testing.T) {
	catalog, _, _ := newCatalogForTest(t)
	ctx := context.Background()
	admin := &models.Session{UserID: "admin", Role: models.Admin}
	category, err := catalog.CreateCategory(ctx, admin, CategoryInput{Name: "Kerajinan", Icon: "crafts"})
	require.NoError(t, err)

	input := ProductInput{CategoryID: category.ID, Name: "Tas Anyaman", Price: 75000, Stock: 3}
	_, err = catalog.CreateProduct(ctx, admin, input)
	assert.ErrorIs(t, err, ErrValidation)

	input.Latitude = floatPtr(villageLat)
	_, err = catalog.CreateProduct(ctx, admin, input)
	assert.ErrorIs(t, err, ErrValidation)

	input.Longitude = floatPtr(200)
	_, err = catalog.CreateProduct(ctx, admin, input)
	assert.ErrorIs(t, err, ErrValidation)

	input.Longitude = floatPtr(villageLng)
	product, err := catalog.CreateProduct(ctx, admin, input)
	require.NoError(t, err)
	assert.Equal(t, villageLat, product.Latitude)
	assert.Equal(t, villageLng, product.Longitude)
}

package services

import (
	"context"
	"testing"
	"time"

	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/repository"
	"village_market/internal/shipping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	villageLat = -6.9147
	villageLng = 107.6098
)

type checkoutFixture struct {
	db        *gorm.DB
	store     *memStore
	publisher *recordingPublisher
	carts     CartService
	checkout  CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	db := newTestDB(t)
	store := newMemStore()
	publisher := &recordingPublisher{}
	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	carts := NewCartService(cartRepo, productRepo, repository.NewFlashSaleRepository(db))
	checkout := NewCheckoutService(CheckoutDeps{
		DB:            db,
		Carts:         carts,
		AddressRepo:   repository.NewAddressRepository(db),
		ProductRepo:   productRepo,
		OrderRepo:     repository.NewOrderRepository(db),
		OrderItemRepo: repository.NewOrderItemRepository(db),
		CartRepo:      cartRepo,
		Policy:        shipping.DefaultPolicy(),
		Locker:        store,
		LockTTL:       time.Minute,
		Publisher:     publisher,
	})
	return &checkoutFixture{db: db, store: store, publisher: publisher, carts: carts, checkout: checkout}
}

func (f *checkoutFixture) orderCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	return n
}

func TestPlaceOrder_EmptyCartWritesNothing(t *testing.T) {
	f := newCheckoutFixture(t)
	session := seedUser(t, f.db, models.Customer)
	seedAddress(t, f.db, session.UserID, villageLat, villageLng)

	_, err := f.checkout.PlaceOrder(context.Background(), session, PlaceOrderInput{})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, f.orderCount(t))
	assert.Empty(t, f.publisher.types())
}

func TestPlaceOrder_RequiresAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	product := seedProduct(t, f.db, "Bayam", 5000, 10, villageLat, villageLng)
	require.NoError(t, f.carts.AddItem(ctx, session, product.ID, 1))

	_, err := f.checkout.PlaceOrder(ctx, session, PlaceOrderInput{})
	assert.ErrorIs(t, err, ErrAddressRequired)
	assert.Zero(t, f.orderCount(t))
}

func TestPlaceOrder_RejectsAnonymous(t *testing.T) {
	f := newCheckoutFixture(t)
	_, err := f.checkout.PlaceOrder(context.Background(), nil, PlaceOrderInput{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPlaceOrder_CreatesOrderAndClearsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	address := seedAddress(t, f.db, session.UserID, villageLat, villageLng)
	product := seedProduct(t, f.db, "Keripik Singkong", 20000, 5, villageLat, villageLng)
	require.NoError(t, f.carts.AddItem(ctx, session, product.ID, 2))

	order, err := f.checkout.PlaceOrder(ctx, session, PlaceOrderInput{AddressID: address.ID})
	require.NoError(t, err)

	stored := reloadOrder(t, f.db, order.ID)
	assert.True(t, models.ValidOrderID(stored.ID))
	assert.Equal(t, int64(40000), stored.SubtotalAmount)
	assert.Equal(t, shipping.DefaultMinFee, stored.ShippingAmount)
	assert.Equal(t, stored.SubtotalAmount+stored.ShippingAmount, stored.TotalAmount)
	assert.Equal(t, int64(50000), stored.TotalAmount)
	assert.Equal(t, string(models.PaymentPending), stored.PaymentStatus)
	assert.Equal(t, string(models.OrderAwaitingPayment), stored.Status)
	assert.Equal(t, "Jl. Merdeka 1, Sukamaju, Cibiru, Bandung", stored.Address)
	assert.Equal(t, "Budi", stored.CustomerName)

	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Keripik Singkong", stored.Items[0].ProductName)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.Equal(t, int64(20000), stored.Items[0].Price)

	assert.Equal(t, 3, reloadProduct(t, f.db, product.ID).Stock)

	cart, err := f.carts.Materialize(ctx, session)
	require.NoError(t, err)
	assert.True(t, cart.Empty())

	assert.Equal(t, []events.Type{events.OrderCreated}, f.publisher.types())
}

func TestPlaceOrder_LockHeldByConcurrentCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	seedAddress(t, f.db, session.UserID, villageLat, villageLng)
	product := seedProduct(t, f.db, "Bayam", 5000, 10, villageLat, villageLng)
	require.NoError(t, f.carts.AddItem(ctx, session, product.ID, 1))

	token, ok, err := f.store.AcquireLock(ctx, "checkout:"+session.UserID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.checkout.PlaceOrder(ctx, session, PlaceOrderInput{})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Zero(t, f.orderCount(t))

	require.NoError(t, f.store.ReleaseLock(ctx, "checkout:"+session.UserID, token))
	_, err = f.checkout.PlaceOrder(ctx, session, PlaceOrderInput{})
	assert.NoError(t, err)
}

func TestPlaceOrder_OutOfStockRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	seedAddress(t, f.db, session.UserID, villageLat, villageLng)
	plenty := seedProduct(t, f.db, "Bayam", 5000, 10, villageLat, villageLng)
	scarce := seedProduct(t, f.db, "Ayam Kampung", 85000, 3, villageLat, villageLng)
	require.NoError(t, f.carts.AddItem(ctx, session, plenty.ID, 2))
	require.NoError(t, f.carts.AddItem(ctx, session, scarce.ID, 3))

	// someone else bought the chickens in the meantime
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", scarce.ID).Update("stock", 1).Error)

	_, err := f.checkout.PlaceOrder(ctx, session, PlaceOrderInput{})
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Zero(t, f.orderCount(t))
	assert.Equal(t, 10, reloadProduct(t, f.db, plenty.ID).Stock)

	cart, err := f.carts.Materialize(ctx, session)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestQuote_DistanceBasedShipping(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	// 0.1 degree of latitude is about 11.12 km
	address := seedAddress(t, f.db, session.UserID, villageLat+0.1, villageLng)
	product := seedProduct(t, f.db, "Ikan Mas", 40000, 10, villageLat, villageLng)
	require.NoError(t, f.carts.AddItem(ctx, session, product.ID, 1))

	quote, err := f.checkout.Quote(ctx, session, address.ID)
	require.NoError(t, err)
	assert.True(t, quote.CanCheckout)
	assert.InDelta(t, 11.12, quote.DistanceKm, 0.01)
	assert.Equal(t, int64(24000), quote.ShippingAmount)
	assert.Equal(t, int64(64000), quote.TotalAmount)
	assert.Equal(t, 1, quote.Origins)
}

func TestQuote_WithoutAddressCannotCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	product := seedProduct(t, f.db, "Bayam", 5000, 10, villageLat, villageLng)
	require.NoError(t, f.carts.AddItem(ctx, session, product.ID, 2))

	quote, err := f.checkout.Quote(ctx, session, 0)
	require.NoError(t, err)
	assert.False(t, quote.CanCheckout)
	assert.Equal(t, int64(10000), quote.SubtotalAmount)
	assert.Zero(t, quote.ShippingAmount)
}

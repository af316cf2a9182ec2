package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"village_market/internal/database"
	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/redis"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// memStore stands in for the redis client.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	sessions map[string]*redis.SessionData
	locks    map[string]string
	tokens   int
}

func newMemStore() *memStore {
	return &memStore{
		data:     make(map[string][]byte),
		sessions: make(map[string]*redis.SessionData),
		locks:    make(map[string]string),
	}
}

func (m *memStore) SetTempData(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memStore) GetTempData(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return redis.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memStore) DeleteTempData(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	m.tokens++
	token := fmt.Sprintf("tok-%d", m.tokens)
	m.locks[key] = token
	return token, true, nil
}

func (m *memStore) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *memStore) SetSession(ctx context.Context, userID string, data *redis.SessionData, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = data
	return nil
}

func (m *memStore) GetSession(ctx context.Context, userID string) (*redis.SessionData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[userID]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	return data, nil
}

func (m *memStore) DeleteSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

type mockGateway struct {
	mock.Mock
}

func (g *mockGateway) CreateTransaction(ctx context.Context, req payment.TransactionRequest) (*payment.Transaction, error) {
	args := g.Called(ctx, req)
	tx, _ := args.Get(0).(*payment.Transaction)
	return tx, args.Error(1)
}

func (g *mockGateway) TransactionStatus(ctx context.Context, orderID string) (*payment.StatusResult, error) {
	args := g.Called(ctx, orderID)
	res, _ := args.Get(0).(*payment.StatusResult)
	return res, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (m *recordingMessenger) SendTextMessage(ctx context.Context, phone, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string][]string)
	}
	m.sent[phone] = append(m.sent[phone], message)
	return nil
}

func (m *recordingMessenger) count(phone string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent[phone])
}

func seedUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.Session {
	t.Helper()
	user := &models.User{
		Email:        fmt.Sprintf("%s-%d@desa.id", role, time.Now().UnixNano()),
		PasswordHash: "x",
		FullName:     "Warga Desa",
		Role:         string(role),
	}
	require.NoError(t, db.Create(user).Error)
	return &models.Session{UserID: user.ID, Email: user.Email, Role: role}
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price int64, stock int, lat, lng float64) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:      name,
		Price:     price,
		Stock:     stock,
		Latitude:  lat,
		Longitude: lng,
		IsActive:  true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedAddress(t *testing.T, db *gorm.DB, userID string, lat, lng float64) *models.Address {
	t.Helper()
	address := &models.Address{
		UserID:    userID,
		Name:      "Budi",
		Phone:     "081234567890",
		Detail:    "Jl. Merdeka 1",
		Kelurahan: "Sukamaju",
		Kecamatan: "Cibiru",
		City:      "Bandung",
		Latitude:  lat,
		Longitude: lng,
		IsDefault: true,
	}
	require.NoError(t, db.Create(address).Error)
	return address
}

// seedOrder writes a pending order with a single line, bypassing checkout.
func seedOrder(t *testing.T, db *gorm.DB, userID string, product *models.Product, quantity int, shipping int64) *models.Order {
	t.Helper()
	subtotal := product.Price * int64(quantity)
	order := &models.Order{
		UserID:         userID,
		CustomerName:   "Budi",
		WhatsAppNumber: "6281234567890",
		Address:        "Jl. Merdeka 1, Bandung",
		SubtotalAmount: subtotal,
		ShippingAmount: shipping,
		TotalAmount:    subtotal + shipping,
		PaymentStatus:  string(models.PaymentPending),
		Status:         string(models.OrderAwaitingPayment),
	}
	require.NoError(t, db.Create(order).Error)
	item := models.OrderItem{
		OrderID:     order.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		Price:       product.Price,
	}
	require.NoError(t, db.Create(&item).Error)
	order.Items = []models.OrderItem{item}
	return order
}

func reloadOrder(t *testing.T, db *gorm.DB, id string) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", id).Error)
	return &order
}

func reloadProduct(t *testing.T, db *gorm.DB, id uint) *models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, db.Unscoped().First(&product, id).Error)
	return &product
}

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/payment"
	"village_market/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newReminderForTest(f *paymentFixture, messenger Messenger, publisher events.Publisher) *reminderService {
	return NewReminderService(ReminderDeps{
		DB:          f.db,
		OrderRepo:   repository.NewOrderRepository(f.db),
		ProductRepo: repository.NewProductRepository(f.db),
		Gateway:     f.gateway,
		Messenger:   messenger,
		Publisher:   publisher,
		RemindAfter: time.Hour,
		ExpireAfter: 24 * time.Hour,
	}).(*reminderService)
}

// seedAgedOrders writes n pending orders placed age ago, one second apart.
func seedAgedOrders(t *testing.T, db *gorm.DB, userID string, n int, age time.Duration, edit func(*models.Order)) []models.Order {
	t.Helper()
	placed := time.Now().Add(-age)
	orders := make([]models.Order, 0, n)
	for i := 0; i < n; i++ {
		order := models.Order{
			UserID:         userID,
			CustomerName:   "Budi",
			WhatsAppNumber: "6281111111111",
			Address:        "Jl. Merdeka 1, Bandung",
			SubtotalAmount: 20000,
			ShippingAmount: 10000,
			TotalAmount:    30000,
			PaymentStatus:  string(models.PaymentPending),
			Status:         string(models.OrderAwaitingPayment),
			CreatedAt:      placed.Add(time.Duration(i) * time.Second),
		}
		if edit != nil {
			edit(&order)
		}
		orders = append(orders, order)
	}
	require.NoError(t, db.Create(&orders).Error)
	return orders
}

func goOnline(t *testing.T, db *gorm.DB, order *models.Order) {
	t.Helper()
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"payment_method": string(models.PaymentOnline),
		"payment_token":  "snap-tok",
	}).Error)
}

func TestReminders_SentOncePerOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	messenger := &recordingMessenger{}
	_, order, _ := f.pendingOrder(t)
	svc := newReminderForTest(f, messenger, nil)

	sent, err := svc.SendPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "order is too fresh for a reminder")

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	sent, err = svc.SendPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, messenger.count(order.WhatsAppNumber))
	assert.NotNil(t, reloadOrder(t, f.db, order.ID).RemindedAt)

	sent, err = svc.SendPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, messenger.count(order.WhatsAppNumber))
}

func TestReminders_NewOrderNotCrowdedOutByRemindedOnes(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	messenger := &recordingMessenger{}
	session := seedUser(t, f.db, models.Customer)
	remindedAt := time.Now().Add(-4 * time.Hour)
	seedAgedOrders(t, f.db, session.UserID, sweepBatch+5, 5*time.Hour, func(o *models.Order) {
		o.RemindedAt = &remindedAt
	})
	fresh := seedAgedOrders(t, f.db, session.UserID, 1, 2*time.Hour, func(o *models.Order) {
		o.WhatsAppNumber = "6282222222222"
	})[0]
	svc := newReminderForTest(f, messenger, nil)

	for tick := 0; tick < 3; tick++ {
		_, err := svc.SendPaymentReminders(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, messenger.count(fresh.WhatsAppNumber))
	assert.Zero(t, messenger.count("6281111111111"))
}

func TestReminders_FailedSendIsRetried(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	messenger := &mockMessenger{}
	_, order, _ := f.pendingOrder(t)
	svc := newReminderForTest(f, messenger, nil)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	messenger.On("SendTextMessage", mock.Anything, order.WhatsAppNumber, mock.Anything).Return(errors.New("gateway offline")).Once()
	messenger.On("SendTextMessage", mock.Anything, order.WhatsAppNumber, mock.Anything).Return(nil).Once()

	sent, err := svc.SendPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Nil(t, reloadOrder(t, f.db, order.ID).RemindedAt)

	sent, err = svc.SendPaymentReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	messenger.AssertExpectations(t)
}

func TestExpireStalePayments(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	publisher := &recordingPublisher{}
	session, stale, product := f.pendingOrder(t)
	paid := seedOrder(t, f.db, session.UserID, product, 1, 10000)
	require.NoError(t, f.payments.PayCOD(ctx, session, paid.ID))

	svc := newReminderForTest(f, nil, publisher)
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	expired, err := svc.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored := reloadOrder(t, f.db, stale.ID)
	assert.Equal(t, string(models.PaymentCancelled), stored.PaymentStatus)
	assert.Equal(t, string(models.OrderCancelled), stored.Status)
	assert.Equal(t, product.Stock+2, reloadProduct(t, f.db, product.ID).Stock)
	assert.Equal(t, string(models.PaymentProcessing), reloadOrder(t, f.db, paid.ID).PaymentStatus)
	assert.Equal(t, []events.Type{events.OrderCancelled}, publisher.types())

	expired, err = svc.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestExpireStalePayments_PaidAtGatewayIsSettled(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	publisher := &recordingPublisher{}
	_, order, product := f.pendingOrder(t)
	goOnline(t, f.db, order)

	f.gateway.On("TransactionStatus", mock.Anything, order.ID).Return(&payment.StatusResult{
		OrderID:           order.ID,
		TransactionID:     "txn-77",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "50000.00",
	}, nil).Once()

	svc := newReminderForTest(f, nil, publisher)
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	expired, err := svc.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	stored := reloadOrder(t, f.db, order.ID)
	assert.Equal(t, string(models.PaymentPaid), stored.PaymentStatus)
	assert.Equal(t, string(models.OrderToPack), stored.Status)
	assert.Equal(t, "txn-77", stored.GatewayTransactionID)
	assert.Equal(t, product.Stock, reloadProduct(t, f.db, product.ID).Stock)
	assert.Equal(t, []events.Type{events.OrderPaid}, publisher.types())

	// the gateway's own notification arriving afterwards changes nothing
	n := signedNotification(order.ID, "200", "50000.00", "settlement")
	n.TransactionID = "txn-77"
	require.NoError(t, f.payments.HandleNotification(ctx, n))
	assert.Equal(t, string(models.PaymentPaid), reloadOrder(t, f.db, order.ID).PaymentStatus)
}

func TestExpireStalePayments_GatewayVerdicts(t *testing.T) {
	tests := []struct {
		name        string
		result      *payment.StatusResult
		err         error
		wantPayment models.PaymentStatus
		wantTxn     string
	}{
		{
			name:        "payment page never used",
			err:         &payment.GatewayError{StatusCode: http.StatusNotFound, Message: "Transaction doesn't exist."},
			wantPayment: models.PaymentCancelled,
		},
		{
			name:        "expired at gateway",
			result:      &payment.StatusResult{TransactionID: "txn-5", TransactionStatus: "expire", GrossAmount: "50000.00"},
			wantPayment: models.PaymentCancelled,
			wantTxn:     "txn-5",
		},
		{
			name:        "still open at gateway",
			result:      &payment.StatusResult{TransactionID: "txn-6", TransactionStatus: "pending", GrossAmount: "50000.00"},
			wantPayment: models.PaymentPending,
		},
		{
			name:        "gateway unreachable",
			err:         &payment.GatewayError{StatusCode: http.StatusServiceUnavailable, Message: "try again"},
			wantPayment: models.PaymentPending,
		},
		{
			name:        "settled with another amount",
			result:      &payment.StatusResult{TransactionID: "txn-8", TransactionStatus: "settlement", GrossAmount: "1000.00"},
			wantPayment: models.PaymentPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			ctx := context.Background()
			_, order, _ := f.pendingOrder(t)
			goOnline(t, f.db, order)
			f.gateway.On("TransactionStatus", mock.Anything, order.ID).Return(tt.result, tt.err).Once()

			svc := newReminderForTest(f, nil, nil)
			svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
			_, err := svc.ExpireStalePayments(ctx)
			require.NoError(t, err)

			stored := reloadOrder(t, f.db, order.ID)
			assert.Equal(t, string(tt.wantPayment), stored.PaymentStatus)
			assert.Equal(t, tt.wantTxn, stored.GatewayTransactionID)
		})
	}
}

func TestExpireStalePayments_PagesPastOpenTransactions(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	session := seedUser(t, f.db, models.Customer)
	seedAgedOrders(t, f.db, session.UserID, sweepBatch+3, 30*time.Hour, func(o *models.Order) {
		o.PaymentMethod = string(models.PaymentOnline)
		o.PaymentToken = "snap-tok"
	})
	last := seedAgedOrders(t, f.db, session.UserID, 1, 26*time.Hour, nil)[0]

	f.gateway.On("TransactionStatus", mock.Anything, mock.Anything).
		Return(&payment.StatusResult{TransactionStatus: "pending", GrossAmount: "30000.00"}, nil).
		Times(sweepBatch + 3)

	svc := newReminderForTest(f, nil, nil)
	expired, err := svc.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, string(models.PaymentCancelled), reloadOrder(t, f.db, last.ID).PaymentStatus)
}

func TestSettlementAfterExpiryIsRecorded(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	_, order, _ := f.pendingOrder(t)

	svc := newReminderForTest(f, nil, nil)
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	expired, err := svc.ExpireStalePayments(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	n := signedNotification(order.ID, "200", "50000.00", "settlement")
	require.NoError(t, f.payments.HandleNotification(ctx, n))

	stored := reloadOrder(t, f.db, order.ID)
	assert.Equal(t, string(models.PaymentCancelled), stored.PaymentStatus)
	assert.Equal(t, "txn-123", stored.GatewayTransactionID)
}

func TestReminderRun_ZeroIntervalReturns(t *testing.T) {
	f := newPaymentFixture(t)
	svc := newReminderForTest(f, nil, nil)

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with a zero interval should return")
	}
}

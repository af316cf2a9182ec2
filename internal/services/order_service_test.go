package services

import (
	"context"
	"testing"

	"village_market/internal/events"
	"village_market/internal/models"
	"village_market/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderServiceForTest(t *testing.T) (OrderService, *recordingPublisher, *paymentFixture) {
	f := newPaymentFixture(t)
	publisher := &recordingPublisher{}
	svc := NewOrderService(f.db, repository.NewOrderRepository(f.db), repository.NewProductRepository(f.db), publisher)
	return svc, publisher, f
}

func TestOrderTransitions_HappyPath(t *testing.T) {
	orders, publisher, f := newOrderServiceForTest(t)
	ctx := context.Background()
	admin := seedUser(t, f.db, models.Admin)
	session, order, _ := f.pendingOrder(t)

	_, err := orders.Ship(ctx, admin, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "unpaid orders cannot ship")

	require.NoError(t, f.payments.PayCOD(ctx, session, order.ID))

	shipped, err := orders.Ship(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderShipped), shipped.Status)

	_, err = orders.Cancel(ctx, admin, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "shipped orders cannot be cancelled")

	done, err := orders.Complete(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderCompleted), done.Status)

	_, err = orders.Complete(ctx, admin, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []events.Type{events.OrderStatusChanged, events.OrderStatusChanged}, publisher.types())
}

func TestOrderCancel_PendingRestocks(t *testing.T) {
	orders, publisher, f := newOrderServiceForTest(t)
	ctx := context.Background()
	admin := seedUser(t, f.db, models.Admin)
	_, order, product := f.pendingOrder(t)

	cancelled, err := orders.Cancel(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderCancelled), cancelled.Status)

	stored := reloadOrder(t, f.db, order.ID)
	assert.Equal(t, string(models.OrderCancelled), stored.Status)
	assert.Equal(t, string(models.PaymentCancelled), stored.PaymentStatus)
	assert.Equal(t, product.Stock+2, reloadProduct(t, f.db, product.ID).Stock)
	assert.Equal(t, []events.Type{events.OrderCancelled}, publisher.types())
}

func TestOrderTransitions_RequireAdmin(t *testing.T) {
	orders, _, f := newOrderServiceForTest(t)
	ctx := context.Background()
	session, order, _ := f.pendingOrder(t)

	_, err := orders.Cancel(ctx, session, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = orders.Cancel(ctx, nil, order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = orders.AdminList(ctx, session, repository.OrderFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOrderQueries(t *testing.T) {
	orders, _, f := newOrderServiceForTest(t)
	ctx := context.Background()
	admin := seedUser(t, f.db, models.Admin)
	session, order, _ := f.pendingOrder(t)
	stranger := seedUser(t, f.db, models.Customer)

	own, err := orders.GetForUser(ctx, session, order.ID)
	require.NoError(t, err)
	assert.Len(t, own.Items, 1)

	_, err = orders.GetForUser(ctx, stranger, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	list, err := orders.ListForUser(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, list)

	all, total, err := orders.AdminList(ctx, admin, repository.OrderFilter{Status: string(models.OrderAwaitingPayment)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, all, 1)

	_, _, err = orders.AdminList(ctx, admin, repository.OrderFilter{Status: "Hilang"})
	assert.ErrorIs(t, err, ErrValidation)

	byPhone, err := orders.ListByPhone(ctx, "0812-3456-7890", 5)
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, order.ID, byPhone[0].ID)
}

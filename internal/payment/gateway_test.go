package payment

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapRequest_ExpiryFollowsOrderWindow(t *testing.T) {
	placed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	req := snapRequest(TransactionRequest{
		OrderID:     "0b7d2f4e-1c2a-4d5b-9e8f-123456789abc",
		GrossAmount: 50000,
		Items: []Item{
			{ID: "1", Name: strings.Repeat("Keripik ", 10), Price: 20000, Quantity: 2},
			{ID: "shipping", Name: "Ongkos Kirim", Price: 10000, Quantity: 1},
		},
		StartTime: placed,
		Expiry:    24 * time.Hour,
	})

	require.NotNil(t, req.Expiry)
	assert.Equal(t, "2026-03-01 09:30:00 +0700", req.Expiry.StartTime)
	assert.Equal(t, "minute", req.Expiry.Unit)
	assert.Equal(t, int64(1440), req.Expiry.Duration)

	require.NotNil(t, req.Items)
	items := *req.Items
	require.Len(t, items, 2)
	assert.Len(t, []rune(items[0].Name), maxItemNameLen)
	assert.Equal(t, int32(2), items[0].Qty)
	assert.Equal(t, int64(50000), req.TransactionDetails.GrossAmt)
}

func TestSnapRequest_NoExpiryKeepsGatewayDefault(t *testing.T) {
	req := snapRequest(TransactionRequest{OrderID: "x", GrossAmount: 10000})
	assert.Nil(t, req.Expiry)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&GatewayError{StatusCode: http.StatusNotFound, Message: "Transaction doesn't exist."}))
	assert.True(t, IsNotFound(fmt.Errorf("status: %w", &GatewayError{StatusCode: http.StatusNotFound})))
	assert.False(t, IsNotFound(&GatewayError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, IsNotFound(nil))
}

package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Notification is the body the gateway POSTs to the webhook.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
	TransactionTime   string `json:"transaction_time"`
}

// Signature computes hex(sha512(orderID + statusCode + grossAmount + serverKey)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify compares the notification's signature_key with the expected one.
func (n Notification) Verify(serverKey string) bool {
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// FormatGrossAmount renders rupiah the way the gateway echoes it back ("50000.00").
func FormatGrossAmount(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}

// ParseGrossAmount parses a gateway amount string into whole rupiah.
func ParseGrossAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid gross amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("gross amount %q has a fractional rupiah part", s)
	}
	return d.IntPart(), nil
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

// item names longer than this are rejected by the gateway
const maxItemNameLen = 50

const expiryTimeLayout = "2006-01-02 15:04:05 -0700"

type Item struct {
	ID       string
	Name     string
	Price    int64
	Quantity int
}

type TransactionRequest struct {
	OrderID       string
	GrossAmount   int64
	Items         []Item
	CustomerName  string
	CustomerPhone string
	// the gateway closes the transaction at StartTime+Expiry; zero Expiry
	// keeps the gateway default
	StartTime time.Time
	Expiry    time.Duration
}

type Transaction struct {
	Token       string
	RedirectURL string
}

type StatusResult struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	FraudStatus       string
	StatusCode        string
	GrossAmount       string
}

// GatewayError carries the gateway's own message so it can be shown to the user.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the gateway has no transaction for the order,
// which is the case until the customer picks a payment method.
func IsNotFound(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound
}

type Gateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	TransactionStatus(ctx context.Context, orderID string) (*StatusResult, error)
}

type midtransGateway struct {
	snap snap.Client
	core coreapi.Client
}

func NewMidtransGateway(serverKey string, production bool) Gateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &midtransGateway{}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *midtransGateway) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	resp, mErr := g.snap.CreateTransaction(snapRequest(req))
	if mErr != nil {
		return nil, &GatewayError{StatusCode: mErr.StatusCode, Message: mErr.Message}
	}
	return &Transaction{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func snapRequest(req TransactionRequest) *snap.Request {
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  truncate(it.Name, maxItemNameLen),
			Price: it.Price,
			Qty:   int32(it.Quantity),
		})
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.GrossAmount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Phone: req.CustomerPhone,
		},
		Items: &items,
	}
	if minutes := int64(req.Expiry / time.Minute); minutes > 0 {
		snapReq.Expiry = &snap.ExpiryDetails{
			StartTime: req.StartTime.Format(expiryTimeLayout),
			Unit:      "minute",
			Duration:  minutes,
		}
	}
	return snapReq
}

func (g *midtransGateway) TransactionStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	resp, mErr := g.core.CheckTransaction(orderID)
	if mErr != nil {
		return nil, &GatewayError{StatusCode: mErr.StatusCode, Message: mErr.Message}
	}
	return &StatusResult{
		OrderID:           resp.OrderID,
		TransactionID:     resp.TransactionID,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		StatusCode:        resp.StatusCode,
		GrossAmount:       resp.GrossAmount,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

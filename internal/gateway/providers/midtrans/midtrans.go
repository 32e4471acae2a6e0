package midtrans

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	midtransgo "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

const ProviderName = "midtrans"

type Config struct {
	ServerKey  string
	ClientKey  string
	Production bool
}

// snapAPI is the subset of snap.Client used for order creation.
type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtransgo.Error)
}

type Provider struct {
	serverKey string
	clientKey string
	snap      snapAPI
}

func New(cfg Config) (*Provider, error) {
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	env := midtransgo.Sandbox
	if cfg.Production {
		env = midtransgo.Production
	}
	client := &snap.Client{}
	client.New(serverKey, env)
	return &Provider{
		serverKey: serverKey,
		clientKey: strings.TrimSpace(cfg.ClientKey),
		snap:      client,
	}, nil
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) CheckoutKey() string { return p.clientKey }

// CreateOrder opens a Snap transaction. Midtrans order ids are chosen by the
// merchant, so the receipt doubles as the provider order id.
func (p *Provider) CreateOrder(ctx context.Context, req gatewaydomain.OrderRequest) (*gatewaydomain.ProviderOrder, error) {
	if req.AmountMinor <= 0 {
		return nil, gatewaydomain.ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "School fee"
	}
	snapReq := &snap.Request{
		TransactionDetails: midtransgo.TransactionDetails{
			OrderID:  req.Receipt,
			GrossAmt: req.AmountMinor,
		},
		CustomerDetail: &midtransgo.CustomerDetails{
			FName: req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Contact,
		},
		Items: &[]midtransgo.ItemDetails{{
			ID:    req.Notes["invoice_id"],
			Name:  truncate(description, 50),
			Price: req.AmountMinor,
			Qty:   1,
		}},
		CustomField1: req.Notes["invoice_id"],
		CustomField2: req.Notes["school_id"],
	}

	resp, apiErr := p.snap.CreateTransaction(snapReq)
	if apiErr != nil {
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == 0 {
			return nil, fmt.Errorf("%w: %s", gatewaydomain.ErrProviderUnavailable, apiErr.GetMessage())
		}
		return nil, fmt.Errorf("%w: %s", gatewaydomain.ErrInvalidRequest, apiErr.GetMessage())
	}
	if resp == nil || resp.Token == "" {
		return nil, fmt.Errorf("%w: empty snap token", gatewaydomain.ErrProviderUnavailable)
	}
	return &gatewaydomain.ProviderOrder{
		ID:          req.Receipt,
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToUpper(req.Currency),
		Status:      "created",
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// VerifyCallback is unsupported: Snap has no signed browser callback.
func (p *Provider) VerifyCallback(gatewaydomain.Callback) error {
	return gatewaydomain.ErrCallbackUnsupported
}

type notification struct {
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	FraudStatus       string `json:"fraud_status"`
}

// VerifyWebhook checks signature_key = sha512(order_id + status_code + gross_amount + server_key).
func (p *Provider) VerifyWebhook(payload []byte, _ http.Header) error {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return gatewaydomain.ErrInvalidSignature
	}
	want := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if want == "" {
		return gatewaydomain.ErrInvalidSignature
	}
	got := Signature(n.OrderID, n.StatusCode, n.GrossAmount, p.serverKey)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

func (p *Provider) ParseWebhook(payload []byte, _ http.Header) (*gatewaydomain.WebhookEvent, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	status := strings.ToLower(strings.TrimSpace(n.TransactionStatus))
	if status == "" || strings.TrimSpace(n.OrderID) == "" {
		return nil, gatewaydomain.ErrInvalidPayload
	}

	currency := strings.ToUpper(strings.TrimSpace(n.Currency))
	if currency == "" {
		currency = "IDR"
	}
	event := &gatewaydomain.WebhookEvent{
		RawType:         status,
		Type:            gatewaydomain.WebhookOther,
		ProviderOrderID: strings.TrimSpace(n.OrderID),
		PaymentID:       strings.TrimSpace(n.TransactionID),
		Currency:        currency,
		Reason:          strings.TrimSpace(n.StatusMessage),
	}
	if event.PaymentID != "" {
		event.EventID = event.PaymentID + ":" + status
	}

	switch status {
	case "settlement":
		event.Type = gatewaydomain.WebhookPaymentCaptured
	case "capture":
		switch strings.ToLower(n.FraudStatus) {
		case "", "accept":
			event.Type = gatewaydomain.WebhookPaymentCaptured
		case "deny":
			event.Type = gatewaydomain.WebhookPaymentFailed
		}
	case "deny", "cancel", "failure":
		event.Type = gatewaydomain.WebhookPaymentFailed
	}

	if event.Type == gatewaydomain.WebhookPaymentCaptured {
		if event.PaymentID == "" {
			return nil, gatewaydomain.ErrInvalidPayload
		}
		gross, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
		if err != nil {
			return nil, gatewaydomain.ErrInvalidPayload
		}
		minor, err := gatewaydomain.ToMinor(gross, currency)
		if err != nil {
			return nil, gatewaydomain.ErrAmountMismatch
		}
		event.AmountMinor = minor
	}
	return event, nil
}

// Signature computes the notification signature_key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ gatewaydomain.Provider = (*Provider)(nil)

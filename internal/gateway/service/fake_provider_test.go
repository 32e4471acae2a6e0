package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
)

const (
	fakeName          = "fakepay"
	fakeWebhookSecret = "whsec_fake"
)

// fakeProvider signs callbacks as "ok:<order>|<payment>" and webhooks with an
// HMAC-SHA256 of the raw body in X-Fake-Signature.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	orders   []gatewaydomain.OrderRequest
	failWith error
}

type fakeWebhook struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

func (f *fakeProvider) Name() string        { return fakeName }
func (f *fakeProvider) CheckoutKey() string { return "pk_fake" }

func (f *fakeProvider) CreateOrder(_ context.Context, req gatewaydomain.OrderRequest) (*gatewaydomain.ProviderOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.seq++
	f.orders = append(f.orders, req)
	return &gatewaydomain.ProviderOrder{
		ID:          fmt.Sprintf("order_%d", f.seq),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Status:      "created",
	}, nil
}

func (f *fakeProvider) VerifyCallback(cb gatewaydomain.Callback) error {
	if cb.Signature != signCallback(cb.OrderID, cb.PaymentID) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

func (f *fakeProvider) VerifyWebhook(payload []byte, headers http.Header) error {
	if !hmac.Equal([]byte(headers.Get("X-Fake-Signature")), []byte(signWebhook(payload))) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

func (f *fakeProvider) ParseWebhook(payload []byte, _ http.Header) (*gatewaydomain.WebhookEvent, error) {
	var body fakeWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	evt := &gatewaydomain.WebhookEvent{
		EventID:         body.ID,
		RawType:         body.Type,
		Type:            gatewaydomain.WebhookOther,
		ProviderOrderID: body.OrderID,
		PaymentID:       body.PaymentID,
		AmountMinor:     body.Amount,
		Currency:        "INR",
		Reason:          body.Reason,
	}
	switch body.Type {
	case "captured":
		evt.Type = gatewaydomain.WebhookPaymentCaptured
	case "failed":
		evt.Type = gatewaydomain.WebhookPaymentFailed
	}
	return evt, nil
}

func signCallback(orderID, paymentID string) string {
	return "ok:" + orderID + "|" + paymentID
}

func webhookBody(id, kind, orderID, paymentID string, amount int64) []byte {
	b, _ := json.Marshal(fakeWebhook{ID: id, Type: kind, OrderID: orderID, PaymentID: paymentID, Amount: amount})
	return b
}

func signWebhook(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(fakeWebhookSecret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signedHeaders(payload []byte) http.Header {
	h := http.Header{}
	h.Set("X-Fake-Signature", signWebhook(payload))
	return h
}

package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
)

const (
	ProviderName    = "razorpay"
	defaultBaseURL  = "https://api.razorpay.com"
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

type Provider struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func New(cfg Config) (*Provider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 12 * time.Second}
	}
	return &Provider{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		client:        client,
	}, nil
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) CheckoutKey() string { return p.keyID }

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (p *Provider) CreateOrder(ctx context.Context, req gatewaydomain.OrderRequest) (*gatewaydomain.ProviderOrder, error) {
	if req.AmountMinor <= 0 {
		return nil, gatewaydomain.ErrInvalidAmount
	}
	body, err := json.Marshal(orderRequest{
		Amount:   req.AmountMinor,
		Currency: strings.ToUpper(req.Currency),
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(p.keyID, p.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gatewaydomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: razorpay status %d", gatewaydomain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return nil, errors.New("razorpay_request_failed")
		}
		message := strings.TrimSpace(apiErr.Error.Description)
		if message == "" {
			message = "razorpay_request_failed"
		}
		return nil, fmt.Errorf("%w: %s", gatewaydomain.ErrInvalidRequest, message)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, errors.New("razorpay_response_invalid")
	}
	return &gatewaydomain.ProviderOrder{
		ID:          order.ID,
		AmountMinor: order.Amount,
		Currency:    strings.ToUpper(order.Currency),
		Status:      order.Status,
	}, nil
}

// VerifyCallback checks the checkout handler signature over "order_id|payment_id".
func (p *Provider) VerifyCallback(cb gatewaydomain.Callback) error {
	orderID := strings.TrimSpace(cb.OrderID)
	paymentID := strings.TrimSpace(cb.PaymentID)
	if orderID == "" || paymentID == "" || strings.TrimSpace(cb.Signature) == "" {
		return gatewaydomain.ErrInvalidSignature
	}
	expected := Sign(p.keySecret, []byte(orderID+"|"+paymentID))
	if !hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(cb.Signature))), []byte(expected)) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

func (p *Provider) VerifyWebhook(payload []byte, headers http.Header) error {
	if p.webhookSecret == "" {
		return gatewaydomain.ErrInvalidSignature
	}
	signature := strings.ToLower(strings.TrimSpace(headers.Get(signatureHeader)))
	if signature == "" {
		return gatewaydomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(p.webhookSecret, payload))) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment json.RawMessage `json:"payment"`
		Order   json.RawMessage `json:"order"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

func (p *Provider) ParseWebhook(payload []byte, headers http.Header) (*gatewaydomain.WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	rawType := strings.TrimSpace(envelope.Event)
	if rawType == "" {
		return nil, gatewaydomain.ErrInvalidPayload
	}

	event := &gatewaydomain.WebhookEvent{
		EventID: strings.TrimSpace(headers.Get(eventIDHeader)),
		RawType: rawType,
		Type:    gatewaydomain.WebhookOther,
	}
	switch rawType {
	case "payment.captured", "order.paid":
		event.Type = gatewaydomain.WebhookPaymentCaptured
	case "payment.failed":
		event.Type = gatewaydomain.WebhookPaymentFailed
	default:
		return event, nil
	}

	entity, err := unwrapPayment(envelope.Payload.Payment)
	if err != nil {
		return nil, err
	}
	event.ProviderOrderID = strings.TrimSpace(entity.OrderID)
	event.PaymentID = strings.TrimSpace(entity.ID)
	event.AmountMinor = entity.Amount
	event.Currency = strings.ToUpper(strings.TrimSpace(entity.Currency))
	event.Reason = strings.TrimSpace(entity.ErrorDescription)
	if event.ProviderOrderID == "" || event.PaymentID == "" {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	return event, nil
}

// unwrapPayment accepts both {"entity":{...}} and a bare payment object.
func unwrapPayment(raw json.RawMessage) (paymentEntity, error) {
	if len(raw) == 0 {
		return paymentEntity{}, gatewaydomain.ErrInvalidPayload
	}
	var wrapped struct {
		Entity *paymentEntity `json:"entity"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Entity != nil {
		return *wrapped.Entity, nil
	}
	var entity paymentEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return paymentEntity{}, gatewaydomain.ErrInvalidPayload
	}
	return entity, nil
}

// Sign returns hex(HMAC-SHA256(secret, message)), the scheme used for both
// callback and webhook signatures.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ gatewaydomain.Provider = (*Provider)(nil)

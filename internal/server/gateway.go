package server

import (
	"errors"
	"net/http"
	"strings"

	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type callbackRequest struct {
	Provider  string `json:"provider"`
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type callbackResponse struct {
	Status        string `json:"status"`
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

const (
	callbackStatusPaid      = "paid"
	callbackStatusVerifying = "verifying"
)

func (s *Server) CreateGatewayOrder(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	var req gatewaydomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkout, err := s.broker.CreateOrder(c.Request.Context(), schoolID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": checkout})
}

func (s *Server) GetGatewayOrder(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	view, err := s.broker.GetOrder(c.Request.Context(), schoolID, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// GatewayCallback verifies the browser's post-checkout payload. It answers
// "paid" only once the payment row is committed.
func (s *Server) GatewayCallback(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.verifier.VerifyCallback(c.Request.Context(), schoolID, req.Provider, gatewaydomain.Callback{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	switch {
	case err == nil:
	case errors.Is(err, gatewaydomain.ErrReconciliation),
		errors.Is(err, gatewaydomain.ErrCallbackUnsupported):
		logger.FromContext(c.Request.Context()).Info("gateway callback pending webhook",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		c.JSON(http.StatusAccepted, callbackResponse{Status: callbackStatusVerifying, OrderID: req.OrderID})
		return
	default:
		AbortWithError(c, err)
		return
	}

	if result == nil || result.Payment.ID == 0 {
		c.JSON(http.StatusAccepted, callbackResponse{Status: callbackStatusVerifying, OrderID: req.OrderID})
		return
	}
	c.JSON(http.StatusOK, callbackResponse{
		Status:        callbackStatusPaid,
		OrderID:       result.Order.ProviderOrderID,
		PaymentID:     result.Payment.ID.String(),
		ReceiptNumber: result.Payment.ReceiptNumber,
		Duplicate:     result.Duplicate,
	})
}

package server

import (
	"net/http"
	"strings"

	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	paymentdomain "github.com/dev-orchid/shiksha-sub001/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type refundRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	var req paymentdomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Mode == paymentdomain.ModeOnlineGateway {
		// gateway payments only enter through the verifier
		AbortWithError(c, newValidationError("payment_mode", "invalid_payment_mode", "online_gateway payments are recorded by the gateway"))
		return
	}
	if strings.TrimSpace(req.RecordedBy) == "" {
		_, actorID := obscontext.ActorFromContext(c.Request.Context())
		req.RecordedBy = actorID
	}

	result, err := s.paymentSvc.RecordPayment(c.Request.Context(), schoolID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) GetReceipt(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	receipt, err := s.paymentSvc.GetReceipt(c.Request.Context(), schoolID, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) RefundPayment(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.paymentSvc.Refund(c.Request.Context(), schoolID, paymentID, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

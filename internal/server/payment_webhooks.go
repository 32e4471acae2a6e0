package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	"github.com/gin-gonic/gin"
)

const maxWebhookBytes = 1 << 20

// HandleGatewayWebhook passes the raw body to the verifier; signatures are
// computed over the exact bytes the provider sent.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.verifier.VerifyWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		// terminal outcomes are already persisted on the order; redelivery cannot change them
		if errors.Is(err, gatewaydomain.ErrAmountMismatch) || isConflictError(err) {
			_ = c.Error(err)
			c.JSON(http.StatusOK, gin.H{"status": "rejected", "reason": webhookRejectReason(err)})
			return
		}
		AbortWithError(c, err)
		return
	}

	status := "ok"
	if result != nil && result.Duplicate {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func webhookRejectReason(err error) string {
	if errors.Is(err, gatewaydomain.ErrAmountMismatch) {
		return gatewaydomain.ErrAmountMismatch.Error()
	}
	return conflictCode(err)
}

package server

import (
	"net/http"
	"strings"
	"time"

	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	keys, err := s.apiKeySvc.List(c.Request.Context(), schoolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scopes := make([]string, 0, len(req.Scopes))
	for _, scope := range req.Scopes {
		if scope = strings.ToLower(strings.TrimSpace(scope)); scope != "" {
			scopes = append(scopes, scope)
		}
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), schoolID, apikeydomain.CreateRequest{
		Name:      strings.TrimSpace(req.Name),
		Scopes:    scopes,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditAPIKey(c, auditdomain.ActionAPIKeyCreated, resp.KeyID, map[string]any{
		"name":   strings.TrimSpace(req.Name),
		"scopes": scopes,
	})
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RotateAPIKey(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	keyID := strings.TrimSpace(c.Param("key_id"))
	resp, err := s.apiKeySvc.Rotate(c.Request.Context(), schoolID, keyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditAPIKey(c, auditdomain.ActionAPIKeyRotated, resp.KeyID, map[string]any{
		"rotated_from_key_id": keyID,
	})
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	keyID := strings.TrimSpace(c.Param("key_id"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), schoolID, keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditAPIKey(c, auditdomain.ActionAPIKeyRevoked, keyID, nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) auditAPIKey(c *gin.Context, action, keyID string, metadata map[string]any) {
	schoolID, ok := schoolIDFromContext(c)
	if !ok {
		return
	}
	err := s.auditSvc.AuditLog(c.Request.Context(), schoolID, auditdomain.Entry{
		Action:     action,
		TargetType: "api_key",
		TargetID:   keyID,
		Metadata:   metadata,
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("api key audit failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

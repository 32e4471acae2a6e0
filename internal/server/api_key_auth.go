package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/dev-orchid/shiksha-sub001/internal/apikey/domain"
	auditdomain "github.com/dev-orchid/shiksha-sub001/internal/audit/domain"
	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	"github.com/gin-gonic/gin"
)

const (
	HeaderSchool          = "X-School-ID"
	contextPrincipalKey   = "api_key_principal"
	contextSchoolIDGinKey = "school_id"
)

// APIKeyRequired authenticates requests using a school API key.
// The school is derived solely from the key; a caller-supplied school id is refused.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if requestHasSchoolID(c) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = obscontext.WithSchoolID(ctx, principal.SchoolID.String())
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeAPIKey), principal.KeyID)
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextPrincipalKey, principal)
		c.Set(contextSchoolIDGinKey, principal.SchoolID)
		c.Next()
	}
}

// RequireScope rejects keys that were not granted scope.
func (s *Server) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !principal.HasScope(scope) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (*apikeydomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*apikeydomain.Principal)
	return principal, ok && principal != nil
}

func schoolIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextSchoolIDGinKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id != 0
}

func requestHasSchoolID(c *gin.Context) bool {
	if strings.TrimSpace(c.GetHeader(HeaderSchool)) != "" {
		return true
	}
	if value, ok := c.GetQuery("school_id"); ok && strings.TrimSpace(value) != "" {
		return true
	}
	return false
}

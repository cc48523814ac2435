package middleware

import (
	"net/http"
	"strings"

	"github.com/crmigrate/backend/internal/infrastructure/logger"
	"github.com/crmigrate/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trusted identity headers set by the upstream auth layer
const (
	OrgHeaderKey  = "X-Org-ID"
	UserHeaderKey = "X-User-ID"
)

// OrgContextConfig holds configuration for OrgContext
type OrgContextConfig struct {
	// SkipPaths are paths that don't require an org (e.g., health check)
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultOrgContextConfig returns the default configuration
func DefaultOrgContextConfig() OrgContextConfig {
	return OrgContextConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready"},
	}
}

// OrgContext reads the org and user ids from the trusted headers. The org id
// is required and both must be UUIDs when present.
func OrgContext(cfg OrgContextConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		orgID, err := uuid.Parse(strings.TrimSpace(c.GetHeader(OrgHeaderKey)))
		if err != nil || orgID == uuid.Nil {
			log.Warn("Request rejected, missing or invalid org header",
				zap.String("request_id", GetRequestID(c)),
				zap.String("path", path),
			)
			abortMissingOrg(c, "X-Org-ID header must be a valid UUID")
			return
		}
		c.Set(logger.GinOrgIDKey, orgID.String())
		ctx := logger.WithOrgID(c.Request.Context(), orgID.String())

		if raw := strings.TrimSpace(c.GetHeader(UserHeaderKey)); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				abortMissingOrg(c, "X-User-ID header must be a valid UUID")
				return
			}
			c.Set(logger.GinUserIDKey, userID.String())
			ctx = logger.WithUserID(ctx, userID.String())
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortMissingOrg(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeMissingOrg, message, GetRequestID(c)))
}

// GetOrgID returns the org id set by OrgContext
func GetOrgID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(logger.GinOrgIDKey))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetUserID returns the user id set by OrgContext, or uuid.Nil
func GetUserID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetString(logger.GinUserIDKey))
	if err != nil {
		return uuid.Nil
	}
	return id
}

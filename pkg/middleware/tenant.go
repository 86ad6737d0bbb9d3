package middleware

import (
	"strings"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const (
	TenantHeader    = "X-TENANT-ID"
	ActorIDHeader   = "X-ACTOR-ID"
	ActorNameHeader = "X-ACTOR-NAME"
	ActorKindHeader = "X-ACTOR-KIND"
)

// Tenant requires the tenant header and stores it on the request context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			_ = c.Error(errutil.BadRequest("missing "+TenantHeader+" header", nil))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(actor.WithTenant(c.Request.Context(), tenantID))
		c.Next()
	}
}

// Actor resolves the calling actor from headers. Anonymous calls are allowed
// here; authorization decides what they may do.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ActorIDHeader)
		if strings.TrimSpace(id) != "" {
			ref := actor.New(id, c.GetHeader(ActorNameHeader), actor.Kind(c.GetHeader(ActorKindHeader)))
			c.Request = c.Request.WithContext(actor.WithActor(c.Request.Context(), ref))
		}
		c.Next()
	}
}

func TenantID(c *gin.Context) string {
	return actor.TenantFromContext(c.Request.Context())
}

func CurrentActor(c *gin.Context) (actor.Ref, bool) {
	return actor.FromContext(c.Request.Context())
}

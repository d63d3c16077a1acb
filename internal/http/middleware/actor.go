package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lotline-backend/internal/platform/ctxutil"
)

const (
	headerActorID = "X-Actor-Id"
	// AnonymousActor is recorded when the gateway forwards no identity.
	AnonymousActor = "anonymous"
	maxActorLen    = 128
)

// Actor stores the operator identity asserted by the gateway.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(headerActorID))
		if actor == "" {
			actor = AnonymousActor
		}
		if len(actor) > maxActorLen {
			actor = actor[:maxActorLen]
		}
		c.Request = c.Request.WithContext(ctxutil.WithActor(c.Request.Context(), actor))
		c.Set("actor_id", actor)
		c.Next()
	}
}

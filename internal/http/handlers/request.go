package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/http/response"
	"github.com/yungbote/lotline-backend/internal/platform/ctxutil"
)

const headerIdempotencyKey = "Idempotency-Key"

func actorID(c *gin.Context) string {
	return ctxutil.ActorFrom(c.Request.Context())
}

// idempotencyKey prefers the header; body keys are accepted for clients
// that cannot set headers.
func idempotencyKey(c *gin.Context, body string) string {
	if k := strings.TrimSpace(c.GetHeader(headerIdempotencyKey)); k != "" {
		return k
	}
	return strings.TrimSpace(body)
}

func pathUUID(c *gin.Context, op, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		response.RespondInvalid(c, op, fmt.Errorf("%s must be a uuid", name))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondInvalid(c, op, err)
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, op string, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, op, dst)
}

func queryInt(c *gin.Context, op, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.RespondInvalid(c, op, fmt.Errorf("%s must be a non-negative integer", name))
		return 0, false
	}
	return n, true
}

func queryUUID(c *gin.Context, op, name string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondInvalid(c, op, fmt.Errorf("%s must be a uuid", name))
		return uuid.Nil, false
	}
	return id, true
}

func queryBool(c *gin.Context, op, name string) (*bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		response.RespondInvalid(c, op, fmt.Errorf("%s must be a boolean", name))
		return nil, false
	}
	return &b, true
}

func queryTime(c *gin.Context, op, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		response.RespondInvalid(c, op, fmt.Errorf("%s must be an RFC3339 timestamp", name))
		return time.Time{}, false
	}
	return t.UTC(), true
}

func page(c *gin.Context, op string) (limit, offset int, ok bool) {
	if limit, ok = queryInt(c, op, "limit", 50); !ok {
		return 0, 0, false
	}
	if offset, ok = queryInt(c, op, "offset", 0); !ok {
		return 0, 0, false
	}
	return limit, offset, true
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/lotline-backend/internal/platform/ctxutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

func serve(t *testing.T, req *http.Request, mw ...gin.HandlerFunc) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	var actor string
	r.GET("/x", func(c *gin.Context) {
		actor = ctxutil.ActorFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec, actor
}

func TestActorFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Actor-Id", "  op-17 ")
	_, actor := serve(t, req, Actor())
	if actor != "op-17" {
		t.Fatalf("actor: want=%q got=%q", "op-17", actor)
	}
}

func TestActorDefaultsAndTruncates(t *testing.T) {
	_, actor := serve(t, httptest.NewRequest(http.MethodGet, "/x", nil), Actor())
	if actor != AnonymousActor {
		t.Fatalf("actor: want=%q got=%q", AnonymousActor, actor)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Actor-Id", strings.Repeat("a", 300))
	_, actor = serve(t, req, Actor())
	if len(actor) != maxActorLen {
		t.Fatalf("actor length: want=%d got=%d", maxActorLen, len(actor))
	}
}

func TestTraceContextEchoesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec, _ := serve(t, req, TraceContext())
	if got := rec.Header().Get("X-Request-Id"); got != "req-1" {
		t.Fatalf("request id: want=%q got=%q", "req-1", got)
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace id header missing")
	}
}

func TestMetricsNilIsPassThrough(t *testing.T) {
	rec, _ := serve(t, httptest.NewRequest(http.MethodGet, "/x", nil), Metrics(nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	r := gin.New()
	r.Use(RequestLogger(log))
	r.GET("/healthcheck", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/runs", func(c *gin.Context) {
		c.Header("Idempotent-Replayed", "true")
		c.Status(http.StatusOK)
	})
	r.GET("/api/lots/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/healthcheck", nil),
		httptest.NewRequest(http.MethodPost, "/api/runs", nil),
		httptest.NewRequest(http.MethodGet, "/api/lots/missing", nil),
	} {
		req.Header.Set("Idempotency-Key", "k-1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("entries: want=3 got=%d", len(entries))
	}
	if entries[0].Level != zap.DebugLevel {
		t.Fatalf("health probe level: got=%s", entries[0].Level)
	}
	replay := entries[1].ContextMap()
	if entries[1].Level != zap.InfoLevel || replay["replayed"] != true || replay["route"] != "/api/runs" {
		t.Fatalf("replay entry: level=%s fields=%v", entries[1].Level, replay)
	}
	if entries[2].Level != zap.WarnLevel || entries[2].ContextMap()["route"] != "/api/lots/:id" {
		t.Fatalf("rejected entry: level=%s fields=%v", entries[2].Level, entries[2].ContextMap())
	}
}

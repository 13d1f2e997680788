package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dsajudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func newTraceRouter(seen *map[string]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddleware())
	r.GET("/x", func(c *gin.Context) {
		ctx := c.Request.Context()
		(*seen)["trace"], _ = ctx.Value(contextkey.TraceID).(string)
		(*seen)["request"], _ = ctx.Value(contextkey.RequestID).(string)
		(*seen)["user"] = UserID(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestTraceContextPropagatesHeaders(t *testing.T) {
	seen := map[string]string{}
	r := newTraceRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-Id", "trace-abc")
	req.Header.Set("X-User-Id", "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen["trace"] != "trace-abc" {
		t.Fatalf("unexpected trace id: %q", seen["trace"])
	}
	if seen["request"] == "" {
		t.Fatalf("request id should be generated")
	}
	if seen["user"] != "alice" {
		t.Fatalf("unexpected user: %q", seen["user"])
	}
	if w.Header().Get("X-Trace-Id") != "trace-abc" {
		t.Fatalf("trace header not echoed")
	}
}

func TestTraceContextRejectsUnsafeUserID(t *testing.T) {
	seen := map[string]string{}
	r := newTraceRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-User-Id", "alice:two-sum")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if seen["user"] != AnonymousUser {
		t.Fatalf("expected anonymous, got %q", seen["user"])
	}
}

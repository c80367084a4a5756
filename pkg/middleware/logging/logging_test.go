package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lowfatcats/contentstore/pkg/middleware/requestid"
	"github.com/lowfatcats/contentstore/pkg/testutil"
)

func newEngine(log *testutil.MockLogger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.RequestID(), Logging(log))
	r.GET("/content/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		path  string
		level string
	}{
		{path: "/content/c1", level: "info"},
		{path: "/missing", level: "warn"},
		{path: "/boom", level: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			log := &testutil.MockLogger{}
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(requestid.RequestIDHeader, "req-1")
			newEngine(log).ServeHTTP(httptest.NewRecorder(), req)

			entry, ok := log.Find(tt.level, "request completed")
			if !ok {
				t.Fatalf("expected %s entry, got %+v", tt.level, log.Entries())
			}
			if entry.Fields[FieldRequestID] != "req-1" || entry.Fields[FieldPath] != tt.path {
				t.Fatalf("unexpected fields %+v", entry.Fields)
			}
		})
	}
}

func TestLogging_ExcludedPaths(t *testing.T) {
	log := &testutil.MockLogger{}
	newEngine(log).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if n := len(log.Entries()); n != 0 {
		t.Fatalf("expected no entries for excluded path, got %d", n)
	}
}

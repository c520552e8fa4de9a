package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/ebusctl/internal/testutil/testlog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestMiddlewareLogsRouteTemplate(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := mux.NewRouter()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware())
	r.HandleFunc("/messages/{name}", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages/flowtemp", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	line := buf.String()
	if !strings.Contains(line, `"path":"/messages/{name}"`) || !strings.Contains(line, `"status":404`) || !strings.Contains(line, `"level":"warn"`) {
		t.Fatalf("unexpected log line %s", line)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/messages/{name}", "404")); got != 1 {
		t.Fatalf("expected one counted request, got %v", got)
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/contracts/{contractID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/contracts/"+id, nil))
	}

	got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/contracts/{contractID}", "418"))
	if got != 3 {
		t.Errorf("expected 3 requests under the route pattern, got %v", got)
	}
}

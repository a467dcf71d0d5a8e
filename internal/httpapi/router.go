// Package httpapi exposes the per-process /healthz and /metrics surface:
// two infrastructure-facing routes, with /healthz reporting the component
// unready once its failure notifier has fired.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether the process considers itself ready to serve. A
// Grapher or Director passes its failure notifier here: once it has fired,
// Ready returns false and /healthz starts reporting 503.
type Checker interface {
	Ready() bool
}

// NewRouter builds the chi router shared by both binaries. metricsHandler
// is served on /metrics (both binaries pass PromHandler, which exposes the
// default Prometheus registry).
func NewRouter(checker Checker, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if !checker.Ready() {
			status = "unready"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Handle("/metrics", metricsHandler)

	return r
}

// PromHandler is a small indirection so callers don't need to import
// promhttp directly just to wire NewRouter.
func PromHandler() http.Handler {
	return promhttp.Handler()
}

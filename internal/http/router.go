package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ai-dialog-analysis-service/internal/app"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{app: application}

	// Recognition endpoint kept at its historical path
	r.Post("/asr", h.analyze)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyses", h.analyze)
		r.Get("/analyses", h.listAnalyses)
		r.Get("/analyses/{analysisID}", h.getAnalysis)
	})

	return otelhttp.NewHandler(r, "dialog-analysis-http")
}

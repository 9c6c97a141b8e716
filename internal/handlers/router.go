package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires every endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})

	r.Route("/cards/{id}", func(r chi.Router) {
		r.Get("/", h.HandleCard)
		r.Post("/prefetch", h.HandlePrefetch)
		r.Get("/{side}", h.HandleCardImage)
		r.Get("/{side}/stored", h.HandleStoredImage)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/", h.HandleCacheStats)
		r.Delete("/", h.HandleClearCache)
	})

	r.Route("/imports", func(r chi.Router) {
		r.Get("/", h.HandleImports)
		r.Post("/", h.HandleStartImport)
		r.Get("/current", h.HandleCurrentImport)
		r.Delete("/current", h.HandleCancelImport)
		r.Get("/{runID}", h.HandleImportDetail)
		r.Delete("/{runID}", h.HandleForgetImport)
	})

	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

package ticket_api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
)

// NewRouter mounts the check-in API. verifier may be nil to serve unauthenticated.
func NewRouter(h *Handler, verifier auth.Verifier, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		// Bearer tokens only; no cookies cross origins.
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(RequestLogger(h.Logger))

	r.Get("/health", h.Health)

	r.Route("/api/checkin", func(r chi.Router) {
		// EventSource cannot send headers, so the stream also takes ?access_token=.
		r.With(auth.StreamMiddleware(verifier, h.Logger)).Get("/stream", h.StreamScans)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, h.Logger))
			r.Post("/scan", h.ScanTicket)
			r.Get("/stats", h.Stats)
			r.Get("/tickets/{uniqueId}", h.ViewTicket)
			r.Get("/tickets/{uniqueId}/history", h.ScanHistory)
		})
	})

	return r
}

// RequestLogger writes one API log line per request.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), time.Since(start).String())
		})
	}
}

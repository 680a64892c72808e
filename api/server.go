/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RequestLog: Structured request logging (logrus)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /join, /login         Public account endpoints
  /auth/*               Token-protected member endpoints
  /admin/*              Token + admin-role endpoints

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go:     Token middleware
  - stream.go:   SSE endpoints
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
	}))

	// Public routes
	r.Post("/join", h.Join)
	r.Post("/login", h.Login)

	// Member routes
	r.Route("/auth", func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Get("/user", h.CurrentUser)

		r.Post("/leave", h.ApplyLeave)
		r.Get("/leave", h.ListLeaves)
		r.Delete("/leave/{id}", h.CancelLeave)

		r.Get("/alarm", h.ListAlarms)

		r.Get("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
		r.Post("/msg", h.SendMessage)
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(h.RequireAdmin)

		r.Post("/leave/{id}/approve", h.ApproveLeave)
		r.Post("/leave/{id}/reject", h.RejectLeave)

		r.Get("/users", h.SearchUsers)
		r.Put("/users/{id}/annual", h.SetAnnualDays)
		r.Put("/users/{id}/role", h.SetRole)
		r.Delete("/users/{id}", h.DeactivateUser)
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request completed")
		})
	}
}

package httpserver

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tripshield/inquiry-desk/internal/auth"
	"github.com/tripshield/inquiry-desk/internal/http/handlers"
	"github.com/tripshield/inquiry-desk/internal/http/middleware"
	"github.com/tripshield/inquiry-desk/internal/observability"
)

type RouterDependencies struct {
	API            *handlers.API
	Sessions       auth.SessionStore
	Logger         *log.Logger
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Trace(deps.Logger))
	router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   deps.CORSOrigins,
		AllowCredentials: true,
	}))
	router.Use(middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))

	// Login and the webhook authenticate themselves; health and metrics
	// stay open for probes and the scrape agent.
	router.Get("/healthz", deps.API.Health)
	router.Method(http.MethodGet, "/metrics", observability.Handler())
	router.Post("/api/auth/login", deps.API.Login)
	router.Post("/webhooks/whatsapp", deps.API.WhatsAppWebhook)

	router.Group(func(protected chi.Router) {
		protected.Use(middleware.SessionAuth(deps.Sessions))

		protected.Post("/api/auth/logout", deps.API.Logout)
		protected.Get("/api/auth/me", deps.API.Me)
		protected.Get("/api/inquiries", deps.API.ListInquiries)
		protected.Get("/api/inquiries/stats", deps.API.InquiryStats)
		protected.Get("/api/inquiries/{id}", deps.API.InquiryDetail)
		protected.Patch("/api/inquiries/{id}", deps.API.UpdateInquiry)
		protected.Get("/api/export", deps.API.ExportInquiries)
		protected.Get("/api/tasks/{id}", deps.API.TaskStatus)
		protected.Post("/api/tasks/{id}/retry", deps.API.RetryTask)
	})

	return router
}

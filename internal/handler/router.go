package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/deal-conversations/internal/attachment"
	"github.com/capitalize-ai/deal-conversations/internal/middleware"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

// RouterConfig configures the HTTP API.
type RouterConfig struct {
	Service        *service.DealService
	Logger         *logger.Logger
	JWTSecret      string
	CORSOrigins    []string
	RateLimit      int
	RateWindow     time.Duration
	MaxUploadBytes int64
	Heartbeat      time.Duration
	// Readiness is nil when the NATS mirror is disabled.
	Readiness ReadinessChecker
}

// NewRouter builds the chi router for the deal conversation API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = attachment.DefaultMaxBytes
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	healthHandler := NewHealthHandler(cfg.Readiness)
	conversationHandler := NewConversationHandler(cfg.Service, log)
	messageHandler := NewMessageHandler(cfg.Service, log)
	lenderHandler := NewLenderHandler(cfg.Service, log)
	attachmentHandler := NewAttachmentHandler(cfg.Service, log, cfg.MaxUploadBytes)
	streamHandler := NewStreamHandler(cfg.Service, log, cfg.Heartbeat)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimit > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimit, cfg.RateWindow))
		}

		r.Get("/attachments/{attachmentID}", attachmentHandler.Download)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Archive)
				r.Post("/status", conversationHandler.AdvanceStatus)

				r.Post("/participants", conversationHandler.AddParticipant)
				r.Get("/participants/{userID}/permissions", conversationHandler.Permissions)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)

				r.Post("/attachments", attachmentHandler.Upload)

				r.Get("/lender-matches", lenderHandler.Matches)
				r.Post("/lender-matches/select", lenderHandler.Select)

				r.Get("/stream", streamHandler.Stream)
			})
		})
	})

	return r
}

package api

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planmate-app/backend/internal/ai"
	"github.com/planmate-app/backend/internal/api/handlers"
	"github.com/planmate-app/backend/internal/billing"
	"github.com/planmate-app/backend/internal/cache"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/middleware"
	"github.com/planmate-app/backend/internal/quota"
	"github.com/planmate-app/backend/internal/ratelimit"
	"github.com/planmate-app/backend/internal/repository"
	"github.com/planmate-app/backend/internal/syncer"
)

// NewRouter creates and configures the main router
func NewRouter(cfg *config.Config, db *database.DB, redisCache *cache.Redis, answerer handlers.PreCheckoutAnswerer) *chi.Mux {
	r := chi.NewRouter()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	taskStateRepo := repository.NewTaskStateRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	// Global middleware
	limiter := ratelimit.New(redisCache, cfg.RateLimitPerMinute, time.Minute)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORSWithOrigins(cfg.CORSOrigins))
	r.Use(middleware.RateLimit(limiter))

	// Initialize services
	quotaService := quota.NewService(userRepo, cfg)
	billingService := billing.NewService(userRepo, paymentRepo, quotaService, cfg)
	syncService := syncer.NewService(chatRepo, messageRepo, taskStateRepo, quotaService)

	llmClient := ai.NewClientWithOptions(cfg.LLMAPIKey, cfg.LLMBaseURL, 60*time.Second)
	planner := ai.NewPlanner(llmClient, cfg.LLMModel)

	// Initialize handlers
	healthHandler := handlers.NewHealthChecker(db, redisCache)
	userHandler := handlers.NewUserHandler(quotaService, cfg)
	planHandler := handlers.NewPlanHandler(quotaService, planner, userRepo, messageRepo, chatRepo, cfg)
	attachHandler := handlers.NewAttachHandler(quotaService, planner, messageRepo, chatRepo, cfg)
	syncHandler := handlers.NewSyncHandler(syncService, cfg)
	webhookHandler := handlers.NewWebhookHandler(billingService, answerer, cfg)

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", handlers.LivenessProbe)
	r.Get("/health/ready", healthHandler.ReadinessProbe)

	// API
	r.Route("/api", func(r chi.Router) {
		r.Post("/user/init", userHandler.Init)
		r.Post("/plan/create", planHandler.Create)
		r.Post("/chat/attach", attachHandler.Attach)
		r.Post("/sync/pull", syncHandler.Pull)
		r.Post("/sync/push", syncHandler.Push)
	})

	// Telegram payment webhook
	r.Post("/telegram/webhook", webhookHandler.Handle)

	return r
}

package api

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/andrew/mentor-gateway/internal/api/handlers"
	"github.com/andrew/mentor-gateway/internal/api/middleware"
	"github.com/andrew/mentor-gateway/internal/config"
	"github.com/andrew/mentor-gateway/internal/database"
	"github.com/andrew/mentor-gateway/internal/fallback"
	"github.com/andrew/mentor-gateway/internal/mentor"
	"github.com/andrew/mentor-gateway/internal/orchestrator"
)

// Dependencies groups everything the HTTP layer serves
type Dependencies struct {
	Config       *config.Config
	DB           *database.DB
	Orchestrator *orchestrator.Orchestrator
	Store        *fallback.Store
	Mentor       *mentor.Service
	Metrics      http.Handler
	Logger       *log.Logger
}

// SetupRoutes configures all API routes. ctx bounds background middleware work.
func SetupRoutes(ctx context.Context, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Create handlers
	statusHandler := handlers.NewStatusHandler(deps.Orchestrator, deps.Store)
	alertHandler := handlers.NewAlertHandler(deps.DB)
	usageHandler := handlers.NewUsageHandler(deps.DB)
	mentorHandler := handlers.NewMentorHandler(deps.Mentor, deps.Store)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	// Create middleware
	adminAuth := middleware.NewAdminAuth(deps.Config.Auth.AdminToken)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(ctx, deps.Config.Server.RequestsPerMinute)
	loggerMiddleware := middleware.NewLogger(deps.Logger)
	corsMiddleware := middleware.NewCORS(deps.Config.Server.AllowedOrigins)

	// Health check and metrics (no rate limiting)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	// Status and reporting
	mux.HandleFunc("GET /v1/ai/status", statusHandler.HandleStatus)
	mux.HandleFunc("GET /v1/ai/quota", statusHandler.HandleQuota)
	mux.HandleFunc("GET /v1/ai/alerts", alertHandler.HandleListAlerts)
	mux.Handle("POST /v1/ai/alerts/{id}/ack", applyMiddleware(
		http.HandlerFunc(alertHandler.HandleAcknowledgeAlert),
		adminAuth.Authenticate,
	))
	mux.HandleFunc("GET /v1/ai/usage", usageHandler.HandleGetUsageStats)
	mux.HandleFunc("GET /v1/ai/usage/logs", usageHandler.HandleGetUsageLogs)

	// Learner-facing routes spend provider quota and are rate limited
	mux.Handle("POST /v1/mentor/chat", applyMiddleware(
		http.HandlerFunc(mentorHandler.HandleChat),
		rateLimitMiddleware.RateLimit,
	))
	mux.Handle("POST /v1/courses/generate", applyMiddleware(
		http.HandlerFunc(mentorHandler.HandleGenerateCourse),
		rateLimitMiddleware.RateLimit,
	))
	mux.HandleFunc("GET /v1/courses/suggested", mentorHandler.HandleSuggestedTopics)
	mux.Handle("POST /v1/interview/questions", applyMiddleware(
		http.HandlerFunc(mentorHandler.HandleInterviewQuestions),
		rateLimitMiddleware.RateLimit,
	))

	// Apply global middleware
	handler := corsMiddleware.Handle(mux)
	handler = loggerMiddleware.Log(handler)

	return handler
}

// applyMiddleware applies middleware in reverse order
func applyMiddleware(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

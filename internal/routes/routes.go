package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/handlers"
	"github.com/aquameter/aquameter/internal/middleware"
	"github.com/aquameter/aquameter/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	usageHandler *handlers.UsageHandler,
	alertHandler *handlers.AlertHandler,
	reportHandler *handlers.ReportHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
) {
	otpLimit := middleware.RateLimitByIP(middleware.DefaultOtpRateLimit())
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())

	// Public routes
	router.With(otpLimit).Post("/auth/send-otp", authHandler.SendOtp)
	router.With(authLimit).Post("/auth/verify-otp", authHandler.VerifyOtp)
	router.With(authLimit).Post("/auth/register", authHandler.Register)
	router.With(authLimit).Post("/auth/login", authHandler.Login)
	router.With(authLimit).Post("/auth/reset-password", authHandler.ResetPassword)
	router.With(authLimit).Post("/auth/refresh", authHandler.RefreshToken)

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Get("/auth/me", authHandler.Me)

		r.Post("/usage", usageHandler.Submit)
		r.Get("/usage", usageHandler.List)
		r.Get("/usage/stats", usageHandler.Stats)

		r.Get("/alerts", alertHandler.List)
		r.Get("/alerts/{id}", alertHandler.Get)
		r.Patch("/alerts/{id}", alertHandler.UpdateStatus)

		r.Get("/reports/usage.csv", reportHandler.UsageCSV)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))
			r.Get("/admin/users", adminHandler.ListUsers)
			r.Get("/admin/stats", adminHandler.Stats)
			r.Get("/admin/usage", adminHandler.ListUsage)
			r.Get("/admin/alerts", adminHandler.ListAlerts)
		})
	})
}

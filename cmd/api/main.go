package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aquameter/aquameter/internal/auth"
	"github.com/aquameter/aquameter/internal/background"
	"github.com/aquameter/aquameter/internal/config"
	"github.com/aquameter/aquameter/internal/database"
	"github.com/aquameter/aquameter/internal/handlers"
	middlewareCustom "github.com/aquameter/aquameter/internal/middleware"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/repositories"
	"github.com/aquameter/aquameter/internal/routes"
	"github.com/aquameter/aquameter/internal/services"
	pkgauth "github.com/aquameter/aquameter/pkg/auth"
	pkglogger "github.com/aquameter/aquameter/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	otpRepo := repositories.NewOtpRepository(db)
	usageRepo := repositories.NewUsageRepository(db)
	alertRepo := repositories.NewAlertRepository(db)

	// Initialize token manager with composite per-user signing
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		userRepo,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Email delivery: SES when enabled, log-only otherwise
	var emailSender services.EmailSender
	if cfg.Email.Enabled {
		sesSender, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailSender = sesSender
	} else {
		logger.Warn("email delivery disabled, codes will be logged only")
		emailSender = services.NewLogEmailSender(logger)
	}

	// Initialize services
	otpService := services.NewOtpService(otpRepo, emailSender, logger, auditLogger, cfg.Otp)
	authService := services.NewAuthService(userRepo, otpService, tokenManager, emailSender, logger, auditLogger)
	usageService := services.NewUsageService(usageRepo, alertRepo, db, logger, cfg.Detection)
	alertService := services.NewAlertService(alertRepo, logger)
	adminService := services.NewAdminService(userRepo, usageRepo, alertRepo, logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(otpService, authService)
	usageHandler := handlers.NewUsageHandler(usageService)
	alertHandler := handlers.NewAlertHandler(alertService)
	reportHandler := handlers.NewReportHandler(usageService)
	adminHandler := handlers.NewAdminHandler(adminService, usageService, alertService)

	// Monthly summary job
	summaryManager := background.NewSummaryManager(usageRepo, alertRepo, db.Pool, logger, cfg.Detection.SummaryInterval)

	// Bootstrap first admin user if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootCancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, usageHandler, alertHandler, reportHandler, adminHandler, tokenManager, userRepo)

	// Health check with database ping
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start summary job
	summaryCtx, summaryCancel := context.WithCancel(context.Background())
	defer summaryCancel()

	go summaryManager.Start(summaryCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	summaryCancel()
	summaryManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now()
	admin := &models.User{
		Email:             adminEmail,
		PasswordHash:      hashedPassword,
		Name:              "Admin",
		Role:              "admin",
		PasswordChangedAt: &now,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}

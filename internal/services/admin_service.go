package services

import (
	"context"
	"log/slog"

	"github.com/aquameter/aquameter/internal/models"
)

// AdminUserLister is the slice of the user repository the admin surface
// needs.
type AdminUserLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
}

// AdminUsageReader aggregates usage across every user
type AdminUsageReader interface {
	GrandTotal(ctx context.Context) (float64, int, error)
	CategoryCounts(ctx context.Context) (map[string]int, error)
}

// AdminAlertReader aggregates alerts across every user
type AdminAlertReader interface {
	CountUnresolved(ctx context.Context) (int, error)
	CountByType(ctx context.Context, alertType string) (int, error)
}

// SystemStats is the admin dashboard aggregate.
type SystemStats struct {
	TotalUsers        int            `json:"total_users"`
	TotalUsage        float64        `json:"total_usage"`
	TotalReadings     int            `json:"total_readings"`
	UnresolvedAlerts  int            `json:"unresolved_alerts"`
	LeakageAlerts     int            `json:"leakage_alerts"`
	HighUsageAlerts   int            `json:"high_usage_alerts"`
	ReadingsByCategory map[string]int `json:"readings_by_category"`
}

// AdminService backs the admin-only endpoints.
type AdminService struct {
	userRepo  AdminUserLister
	usageRepo AdminUsageReader
	alertRepo AdminAlertReader
	logger    *slog.Logger
}

func NewAdminService(userRepo AdminUserLister, usageRepo AdminUsageReader, alertRepo AdminAlertReader, logger *slog.Logger) *AdminService {
	return &AdminService{
		userRepo:  userRepo,
		usageRepo: usageRepo,
		alertRepo: alertRepo,
		logger:    logger,
	}
}

// ListUsers pages through every account, newest first.
func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return users, nil
}

// Stats collects system-wide counters for the admin dashboard.
func (s *AdminService) Stats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{}

	var err error
	if stats.TotalUsers, err = s.userRepo.Count(ctx); err != nil {
		s.logger.Error("failed to count users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if stats.TotalUsage, stats.TotalReadings, err = s.usageRepo.GrandTotal(ctx); err != nil {
		s.logger.Error("failed to total usage", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if stats.ReadingsByCategory, err = s.usageRepo.CategoryCounts(ctx); err != nil {
		s.logger.Error("failed to count categories", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if stats.UnresolvedAlerts, err = s.alertRepo.CountUnresolved(ctx); err != nil {
		s.logger.Error("failed to count unresolved alerts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if stats.LeakageAlerts, err = s.alertRepo.CountByType(ctx, models.AlertTypeLeakage); err != nil {
		s.logger.Error("failed to count leakage alerts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if stats.HighUsageAlerts, err = s.alertRepo.CountByType(ctx, models.AlertTypeHighUsage); err != nil {
		s.logger.Error("failed to count high usage alerts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return stats, nil
}

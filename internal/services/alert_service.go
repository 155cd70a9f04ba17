package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/repositories"
)

// AlertRepository defines the interface for alert persistence
type AlertRepository interface {
	Insert(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error)
	ListAll(ctx context.Context, limit int) ([]*models.Alert, error)
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus string) (*models.Alert, error)
}

// AlertService reads and transitions alerts. Alerts are visible to their
// owner and to admins; nobody else.
type AlertService struct {
	repo   AlertRepository
	logger *slog.Logger
}

func NewAlertService(repo AlertRepository, logger *slog.Logger) *AlertService {
	return &AlertService{repo: repo, logger: logger}
}

// List returns the caller's alerts, newest first, optionally filtered by
// status.
func (s *AlertService) List(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error) {
	if status != "" && !models.ValidAlertStatus(status) {
		return nil, models.ErrBadRequest
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	alerts, err := s.repo.List(ctx, userID, status, limit)
	if err != nil {
		s.logger.Error("failed to list alerts", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return alerts, nil
}

// Get returns one alert, enforcing ownership. Admins can read any alert.
func (s *AlertService) Get(ctx context.Context, claims *models.TokenClaims, alertID string) (*models.Alert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.UserID != claims.UserID && claims.Role != "admin" {
		return nil, models.ErrForbidden
	}

	return alert, nil
}

// UpdateStatus moves an alert forward along new -> read -> resolved.
// Backward and same-state moves are rejected before touching the store;
// a concurrent transition losing the conditional update maps to the same
// invalid-transition error.
func (s *AlertService) UpdateStatus(ctx context.Context, claims *models.TokenClaims, alertID, newStatus string) (*models.Alert, error) {
	if !models.ValidAlertStatus(newStatus) {
		return nil, models.ErrBadRequest
	}

	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.UserID != claims.UserID && claims.Role != "admin" {
		return nil, models.ErrForbidden
	}

	if !alert.CanTransitionTo(newStatus) {
		return nil, models.ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, alert.ID, alert.Status, newStatus)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrInvalidTransition
		}
		s.logger.Error("failed to update alert status",
			slog.String("alert_id", alertID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("alert status updated",
		slog.String("alert_id", alertID),
		slog.String("from", alert.Status),
		slog.String("to", newStatus),
		slog.String("actor_id", claims.UserID))

	return updated, nil
}

// ListAll returns recent alerts across every user. Admin-only at the
// route layer.
func (s *AlertService) ListAll(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	alerts, err := s.repo.ListAll(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list all alerts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return alerts, nil
}

// Raise creates an alert outside the submission path, used by the
// summary job.
func (s *AlertService) Raise(ctx context.Context, q repositories.Querier, userID, alertType, severity, message string) (*models.Alert, error) {
	alert, err := s.repo.Insert(ctx, q, &models.Alert{
		UserID:   userID,
		Type:     alertType,
		Severity: severity,
		Message:  message,
	})
	if err != nil {
		s.logger.Error("failed to raise alert",
			slog.String("user_id", userID),
			slog.String("type", alertType),
			slog.Any("error", err))
		return nil, err
	}
	return alert, nil
}

func (s *AlertService) load(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load alert", slog.String("alert_id", alertID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return alert, nil
}

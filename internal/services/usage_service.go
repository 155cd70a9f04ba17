package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aquameter/aquameter/internal/config"
	"github.com/aquameter/aquameter/internal/detection"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/repositories"
)

// UsageRepository defines the interface for reading persistence. Methods
// taking a Querier run against whatever the caller passes, pool or open
// transaction.
type UsageRepository interface {
	Insert(ctx context.Context, q repositories.Querier, reading *models.UsageReading) (*models.UsageReading, error)
	RecentAmounts(ctx context.Context, q repositories.Querier, userID string, limit int) ([]float64, error)
	List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error)
	ListAll(ctx context.Context, limit int) ([]*models.UsageReading, error)
	Stats(ctx context.Context, userID string, now time.Time) (*models.UsageStats, error)
}

// UsageAlertWriter is the slice of the alert repository the submission
// path needs.
type UsageAlertWriter interface {
	Insert(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error)
	HasUnresolvedSince(ctx context.Context, q repositories.Querier, userID, alertType string, since time.Time) (bool, error)
}

// TxRunner serializes a unit of work per user. Concurrent submissions for
// the same user queue behind each other so each one evaluates a stable
// baseline.
type TxRunner interface {
	WithUserLock(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error
}

// UsageService classifies and stores readings and raises alerts from the
// detection heuristics.
type UsageService struct {
	usageRepo UsageRepository
	alertRepo UsageAlertWriter
	tx        TxRunner
	logger    *slog.Logger
	cfg       config.DetectionConfig
}

func NewUsageService(usageRepo UsageRepository, alertRepo UsageAlertWriter, tx TxRunner, logger *slog.Logger, cfg config.DetectionConfig) *UsageService {
	return &UsageService{
		usageRepo: usageRepo,
		alertRepo: alertRepo,
		tx:        tx,
		logger:    logger,
		cfg:       cfg,
	}
}

// SubmitResult is the stored reading plus any alerts it raised.
type SubmitResult struct {
	Reading *models.UsageReading
	Alerts  []*models.Alert
}

// Submit stores a reading and evaluates it against the user's recent
// history. The baseline is collected before the insert, inside the same
// per-user lock, so the new reading never dilutes its own comparison.
func (s *UsageService) Submit(ctx context.Context, userID string, amount float64, location string, timestamp time.Time) (*SubmitResult, error) {
	if amount <= 0 {
		return nil, models.ErrBadRequest
	}

	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	thresholds := detection.Thresholds{
		High:     s.cfg.HighThreshold,
		Critical: s.cfg.CriticalThreshold,
	}
	params := detection.LeakParams{
		Factor:     s.cfg.LeakFactor,
		Floor:      s.cfg.LeakFloor,
		MinHistory: s.cfg.MinHistory,
	}

	result := &SubmitResult{}

	err := s.tx.WithUserLock(ctx, userID, func(tx pgx.Tx) error {
		baseline, err := s.usageRepo.RecentAmounts(ctx, tx, userID, s.cfg.BaselineWindow)
		if err != nil {
			return err
		}

		category := detection.Classify(amount, thresholds)

		reading, err := s.usageRepo.Insert(ctx, tx, &models.UsageReading{
			UserID:    userID,
			Amount:    amount,
			Category:  category,
			Location:  location,
			Timestamp: timestamp,
		})
		if err != nil {
			return err
		}
		result.Reading = reading

		for _, finding := range detection.Evaluate(amount, category, baseline, thresholds, params) {
			recent, err := s.alertRepo.HasUnresolvedSince(ctx, tx, userID, finding.Type, time.Now().Add(-s.cfg.DedupWindow))
			if err != nil {
				return err
			}
			if recent {
				continue
			}

			alert, err := s.alertRepo.Insert(ctx, tx, &models.Alert{
				UserID:   userID,
				Type:     finding.Type,
				Severity: finding.Severity,
				Message:  finding.Message,
			})
			if err != nil {
				return err
			}
			result.Alerts = append(result.Alerts, alert)
		}

		return nil
	})
	if err != nil {
		s.logger.Error("failed to submit reading",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	for _, alert := range result.Alerts {
		s.logger.Warn("alert raised",
			slog.String("user_id", userID),
			slog.String("type", alert.Type),
			slog.String("severity", alert.Severity))
	}

	return result, nil
}

// List returns the user's readings, newest first, optionally restricted
// to those at or after since.
func (s *UsageService) List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	readings, err := s.usageRepo.List(ctx, userID, since, limit)
	if err != nil {
		s.logger.Error("failed to list readings", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return readings, nil
}

// Stats summarizes the user's reading history.
func (s *UsageService) Stats(ctx context.Context, userID string) (*models.UsageStats, error) {
	stats, err := s.usageRepo.Stats(ctx, userID, time.Now())
	if err != nil {
		s.logger.Error("failed to compute usage stats", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return stats, nil
}

// ListAll returns recent readings across every user, newest first.
// Admin-only at the route layer.
func (s *UsageService) ListAll(ctx context.Context, limit int) ([]*models.UsageReading, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	readings, err := s.usageRepo.ListAll(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list all readings", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return readings, nil
}

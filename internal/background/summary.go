package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/repositories"
)

// SummaryUsageReader is the slice of the usage repository the job needs
type SummaryUsageReader interface {
	UserIDsWithReadings(ctx context.Context, start, end time.Time) ([]string, error)
	MonthlyTotal(ctx context.Context, userID string, start, end time.Time) (float64, int, error)
}

// SummaryAlertWriter stamps summary alerts, at most one per user per month
type SummaryAlertWriter interface {
	ExistsSince(ctx context.Context, userID, alertType string, since time.Time) (bool, error)
	Insert(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error)
}

// SummaryManager periodically stamps a monthly_summary alert for every
// user who recorded usage in the previous calendar month. Ticks are
// frequent relative to the monthly cadence; the per-month existence check
// makes reruns and restarts harmless.
type SummaryManager struct {
	usageRepo SummaryUsageReader
	alertRepo SummaryAlertWriter
	pool      repositories.Querier
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

func NewSummaryManager(
	usageRepo SummaryUsageReader,
	alertRepo SummaryAlertWriter,
	pool repositories.Querier,
	logger *slog.Logger,
	interval time.Duration,
) *SummaryManager {
	return &SummaryManager{
		usageRepo: usageRepo,
		alertRepo: alertRepo,
		pool:      pool,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic summary task
func (sm *SummaryManager) Start(ctx context.Context) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sm.runSummary(ctx)

	for {
		select {
		case <-ticker.C:
			sm.runSummary(ctx)
		case <-sm.stopCh:
			sm.logger.Info("summary manager stopped")
			return
		case <-ctx.Done():
			sm.logger.Info("summary manager context cancelled")
			return
		}
	}
}

// Stop signals the summary manager to stop
func (sm *SummaryManager) Stop() {
	close(sm.stopCh)
}

func (sm *SummaryManager) runSummary(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start, end := previousMonthBounds(time.Now())

	userIDs, err := sm.usageRepo.UserIDsWithReadings(runCtx, start, end)
	if err != nil {
		sm.logger.Error("failed to list users for monthly summary", slog.Any("error", err))
		return
	}

	stamped := 0
	for _, userID := range userIDs {
		// Alerts created at or after month-end belong to this cycle
		exists, err := sm.alertRepo.ExistsSince(runCtx, userID, models.AlertTypeMonthlySummary, end)
		if err != nil {
			sm.logger.Error("failed to check existing summary alert",
				slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		if exists {
			continue
		}

		total, count, err := sm.usageRepo.MonthlyTotal(runCtx, userID, start, end)
		if err != nil {
			sm.logger.Error("failed to total monthly usage",
				slog.String("user_id", userID), slog.Any("error", err))
			continue
		}

		_, err = sm.alertRepo.Insert(runCtx, sm.pool, &models.Alert{
			UserID:   userID,
			Type:     models.AlertTypeMonthlySummary,
			Severity: models.SeverityLow,
			Message: fmt.Sprintf("Your %s water usage: %.2fL across %d readings",
				start.Format("January 2006"), total, count),
		})
		if err != nil {
			sm.logger.Error("failed to stamp summary alert",
				slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		stamped++
	}

	if stamped > 0 {
		sm.logger.Info("monthly summaries stamped",
			slog.String("month", start.Format("2006-01")),
			slog.Int("count", stamped))
	}
}

// previousMonthBounds returns [start, end) of the calendar month before now
func previousMonthBounds(now time.Time) (time.Time, time.Time) {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, -1, 0)
	return start, end
}

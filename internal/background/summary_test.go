package background

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquameter/aquameter/internal/models"
	"github.com/aquameter/aquameter/internal/repositories"
)

type mockUsageReader struct {
	UserIDsWithReadingsFunc func(ctx context.Context, start, end time.Time) ([]string, error)
	MonthlyTotalFunc        func(ctx context.Context, userID string, start, end time.Time) (float64, int, error)
}

func (m *mockUsageReader) UserIDsWithReadings(ctx context.Context, start, end time.Time) ([]string, error) {
	if m.UserIDsWithReadingsFunc != nil {
		return m.UserIDsWithReadingsFunc(ctx, start, end)
	}
	return nil, nil
}

func (m *mockUsageReader) MonthlyTotal(ctx context.Context, userID string, start, end time.Time) (float64, int, error) {
	if m.MonthlyTotalFunc != nil {
		return m.MonthlyTotalFunc(ctx, userID, start, end)
	}
	return 0, 0, nil
}

type mockAlertWriter struct {
	ExistsSinceFunc func(ctx context.Context, userID, alertType string, since time.Time) (bool, error)
	InsertFunc      func(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error)
}

func (m *mockAlertWriter) ExistsSince(ctx context.Context, userID, alertType string, since time.Time) (bool, error) {
	if m.ExistsSinceFunc != nil {
		return m.ExistsSinceFunc(ctx, userID, alertType, since)
	}
	return false, nil
}

func (m *mockAlertWriter) Insert(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, q, alert)
	}
	alert.ID = "alert123"
	return alert, nil
}

func TestPreviousMonthBounds(t *testing.T) {
	now := time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)
	start, end := previousMonthBounds(now)

	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPreviousMonthBounds_JanuaryWrapsYear(t *testing.T) {
	now := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	start, end := previousMonthBounds(now)

	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestRunSummary_StampsOneAlertPerUser(t *testing.T) {
	usageRepo := &mockUsageReader{
		UserIDsWithReadingsFunc: func(ctx context.Context, start, end time.Time) ([]string, error) {
			return []string{"user1", "user2"}, nil
		},
		MonthlyTotalFunc: func(ctx context.Context, userID string, start, end time.Time) (float64, int, error) {
			return 420.5, 28, nil
		},
	}

	var stamped []*models.Alert
	alertRepo := &mockAlertWriter{
		InsertFunc: func(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error) {
			alert.ID = "alert-" + alert.UserID
			stamped = append(stamped, alert)
			return alert, nil
		},
	}

	sm := NewSummaryManager(usageRepo, alertRepo, nil, slog.Default(), time.Hour)
	sm.runSummary(context.Background())

	require.Len(t, stamped, 2)
	assert.Equal(t, models.AlertTypeMonthlySummary, stamped[0].Type)
	assert.Equal(t, models.SeverityLow, stamped[0].Severity)
	assert.Contains(t, stamped[0].Message, "L across 28 readings")
}

func TestRunSummary_SkipsAlreadyStamped(t *testing.T) {
	usageRepo := &mockUsageReader{
		UserIDsWithReadingsFunc: func(ctx context.Context, start, end time.Time) ([]string, error) {
			return []string{"user1"}, nil
		},
	}

	inserted := false
	alertRepo := &mockAlertWriter{
		ExistsSinceFunc: func(ctx context.Context, userID, alertType string, since time.Time) (bool, error) {
			return true, nil
		},
		InsertFunc: func(ctx context.Context, q repositories.Querier, alert *models.Alert) (*models.Alert, error) {
			inserted = true
			return alert, nil
		},
	}

	sm := NewSummaryManager(usageRepo, alertRepo, nil, slog.Default(), time.Hour)
	sm.runSummary(context.Background())

	assert.False(t, inserted, "a second run must not stamp a duplicate summary")
}

func TestSummaryManager_StartStop(t *testing.T) {
	sm := NewSummaryManager(&mockUsageReader{}, &mockAlertWriter{}, nil, slog.Default(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sm.Start(context.Background())
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	sm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("summary manager did not stop")
	}
}

package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquameter/aquameter/internal/models"
)

func userClaims(userID string) *models.TokenClaims {
	return &models.TokenClaims{Type: "access", UserID: userID, Role: "user"}
}

func adminClaims(userID string) *models.TokenClaims {
	return &models.TokenClaims{Type: "access", UserID: userID, Role: "admin"}
}

func newTestAlert(id, userID, status string) *models.Alert {
	return &models.Alert{
		ID:       id,
		UserID:   userID,
		Type:     models.AlertTypeLeakage,
		Severity: models.SeverityHigh,
		Message:  "Possible leak",
		Status:   status,
	}
}

func TestAlertService_Get_OwnerAllowed(t *testing.T) {
	repo := &MockAlertRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
			return newTestAlert(id, "user123", models.AlertStatusNew), nil
		},
	}
	svc := NewAlertService(repo, slog.Default())

	alert, err := svc.Get(context.Background(), userClaims("user123"), "alert123")
	require.NoError(t, err)
	assert.Equal(t, "alert123", alert.ID)
}

func TestAlertService_Get_StrangerForbidden(t *testing.T) {
	repo := &MockAlertRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
			return newTestAlert(id, "user123", models.AlertStatusNew), nil
		},
	}
	svc := NewAlertService(repo, slog.Default())

	_, err := svc.Get(context.Background(), userClaims("other456"), "alert123")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAlertService_Get_AdminAllowed(t *testing.T) {
	repo := &MockAlertRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
			return newTestAlert(id, "user123", models.AlertStatusNew), nil
		},
	}
	svc := NewAlertService(repo, slog.Default())

	_, err := svc.Get(context.Background(), adminClaims("admin789"), "alert123")
	assert.NoError(t, err)
}

func TestAlertService_Get_NotFound(t *testing.T) {
	svc := NewAlertService(&MockAlertRepository{}, slog.Default())

	_, err := svc.Get(context.Background(), userClaims("user123"), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAlertService_UpdateStatus_ForwardTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"new to read", models.AlertStatusNew, models.AlertStatusRead},
		{"new to resolved", models.AlertStatusNew, models.AlertStatusResolved},
		{"read to resolved", models.AlertStatusRead, models.AlertStatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockAlertRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
					return newTestAlert(id, "user123", tt.from), nil
				},
				UpdateStatusFunc: func(ctx context.Context, id, fromStatus, toStatus string) (*models.Alert, error) {
					assert.Equal(t, tt.from, fromStatus)
					assert.Equal(t, tt.to, toStatus)
					return newTestAlert(id, "user123", toStatus), nil
				},
			}
			svc := NewAlertService(repo, slog.Default())

			updated, err := svc.UpdateStatus(context.Background(), userClaims("user123"), "alert123", tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)
		})
	}
}

func TestAlertService_UpdateStatus_BackwardRejected(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"read to new", models.AlertStatusRead, models.AlertStatusNew},
		{"resolved to read", models.AlertStatusResolved, models.AlertStatusRead},
		{"resolved to new", models.AlertStatusResolved, models.AlertStatusNew},
		{"same state", models.AlertStatusRead, models.AlertStatusRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockAlertRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
					return newTestAlert(id, "user123", tt.from), nil
				},
			}
			svc := NewAlertService(repo, slog.Default())

			_, err := svc.UpdateStatus(context.Background(), userClaims("user123"), "alert123", tt.to)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
		})
	}
}

func TestAlertService_UpdateStatus_UnknownStatus(t *testing.T) {
	svc := NewAlertService(&MockAlertRepository{}, slog.Default())

	_, err := svc.UpdateStatus(context.Background(), userClaims("user123"), "alert123", "archived")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAlertService_UpdateStatus_StrangerForbidden(t *testing.T) {
	repo := &MockAlertRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
			return newTestAlert(id, "user123", models.AlertStatusNew), nil
		},
	}
	svc := NewAlertService(repo, slog.Default())

	_, err := svc.UpdateStatus(context.Background(), userClaims("other456"), "alert123", models.AlertStatusRead)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAlertService_UpdateStatus_ConcurrentTransitionLosesRace(t *testing.T) {
	repo := &MockAlertRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Alert, error) {
			return newTestAlert(id, "user123", models.AlertStatusNew), nil
		},
		UpdateStatusFunc: func(ctx context.Context, id, fromStatus, toStatus string) (*models.Alert, error) {
			return nil, models.ErrConflict
		},
	}
	svc := NewAlertService(repo, slog.Default())

	_, err := svc.UpdateStatus(context.Background(), userClaims("user123"), "alert123", models.AlertStatusRead)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestAlertService_List_InvalidStatusFilter(t *testing.T) {
	svc := NewAlertService(&MockAlertRepository{}, slog.Default())

	_, err := svc.List(context.Background(), "user123", "archived", 10)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAlertService_List_PassesFilterThrough(t *testing.T) {
	var gotStatus string
	repo := &MockAlertRepository{
		ListFunc: func(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error) {
			gotStatus = status
			return []*models.Alert{}, nil
		},
	}
	svc := NewAlertService(repo, slog.Default())

	_, err := svc.List(context.Background(), "user123", models.AlertStatusNew, 10)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusNew, gotStatus)
}

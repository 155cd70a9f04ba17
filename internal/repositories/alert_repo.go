package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aquameter/aquameter/internal/database"
	"github.com/aquameter/aquameter/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AlertRepository struct {
	db *database.DB
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, user_id, alert_type, severity, message, status, created_at, resolved_at`

func scanAlertRow(scanner rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var resolvedAt *time.Time

	err := scanner.Scan(
		&alert.ID, &alert.UserID, &alert.Type, &alert.Severity,
		&alert.Message, &alert.Status, &alert.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	alert.ResolvedAt = resolvedAt
	return &alert, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.Alert, error) {
	defer rows.Close()

	alerts := make([]*models.Alert, 0)

	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

// Insert persists a new alert with status "new". Runs against q so the
// leak detector can emit inside the submission transaction.
func (r *AlertRepository) Insert(ctx context.Context, q Querier, alert *models.Alert) (*models.Alert, error) {
	alert.ID = uuid.New().String()
	alert.Status = models.AlertStatusNew
	alert.CreatedAt = time.Now()

	query := `
		INSERT INTO alerts (id, user_id, alert_type, severity, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + alertColumns

	return scanAlertRow(q.QueryRow(ctx, query,
		alert.ID, alert.UserID, alert.Type, alert.Severity,
		alert.Message, alert.Status, alert.CreatedAt,
	))
}

// HasUnresolvedSince reports whether the user has an unresolved alert of
// the given type created at or after since. Drives same-day deduplication.
func (r *AlertRepository) HasUnresolvedSince(ctx context.Context, q Querier, userID, alertType string, since time.Time) (bool, error) {
	var exists bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE user_id = $1 AND alert_type = $2 AND status <> 'resolved' AND created_at >= $3
		)
	`
	if err := q.QueryRow(ctx, query, userID, alertType, since).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// ExistsSince reports whether any alert of the given type exists for the
// user created at or after since, regardless of status. Used by the
// monthly summary job so a resolved summary is not re-emitted.
func (r *AlertRepository) ExistsSince(ctx context.Context, userID, alertType string, since time.Time) (bool, error) {
	var exists bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE user_id = $1 AND alert_type = $2 AND created_at >= $3
		)
	`
	if err := r.db.Pool.QueryRow(ctx, query, userID, alertType, since).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	return scanAlertRow(r.db.Pool.QueryRow(ctx, query, id))
}

// List returns a user's alerts, newest first, optionally filtered by status.
func (r *AlertRepository) List(ctx context.Context, userID, status string, limit int) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	return scanAlertRows(rows)
}

// ListAll returns alerts across all users, newest first.
func (r *AlertRepository) ListAll(ctx context.Context, limit int) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	return scanAlertRows(rows)
}

// UpdateStatus advances an alert's status, conditioned on the status the
// caller validated the transition from. A concurrent transition makes the
// update match zero rows, reported as ErrConflict.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string) (*models.Alert, error) {
	var resolvedAt *time.Time
	if toStatus == models.AlertStatusResolved {
		now := time.Now()
		resolvedAt = &now
	}

	query := `
		UPDATE alerts SET status = $1, resolved_at = COALESCE($2, resolved_at)
		WHERE id = $3 AND status = $4
		RETURNING ` + alertColumns

	alert, err := scanAlertRow(r.db.Pool.QueryRow(ctx, query, toStatus, resolvedAt, id, fromStatus))
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrConflict
		}
		return nil, err
	}

	return alert, nil
}

// CountUnresolved returns the system-wide count of alerts not yet resolved.
func (r *AlertRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE status <> 'resolved'`).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// CountByType returns the system-wide count of alerts of a given type.
func (r *AlertRepository) CountByType(ctx context.Context, alertType string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE alert_type = $1`, alertType).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

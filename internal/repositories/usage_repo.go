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

type UsageRepository struct {
	db *database.DB
}

func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const usageColumns = `id, user_id, amount, category, location, ts, created_at`

func scanReadingRow(scanner rowScanner) (*models.UsageReading, error) {
	var reading models.UsageReading
	var location *string

	err := scanner.Scan(
		&reading.ID, &reading.UserID, &reading.Amount, &reading.Category,
		&location, &reading.Timestamp, &reading.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if location != nil {
		reading.Location = *location
	}

	return &reading, nil
}

func scanReadingRows(rows pgx.Rows) ([]*models.UsageReading, error) {
	defer rows.Close()

	readings := make([]*models.UsageReading, 0)

	for rows.Next() {
		reading, err := scanReadingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage reading: %w", err)
		}
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reading rows: %w", err)
	}

	return readings, nil
}

// Insert persists a reading. Runs against q so the usage service can call
// it inside the per-user submission transaction.
func (r *UsageRepository) Insert(ctx context.Context, q Querier, reading *models.UsageReading) (*models.UsageReading, error) {
	reading.ID = uuid.New().String()
	reading.CreatedAt = time.Now()

	var location *string
	if reading.Location != "" {
		location = &reading.Location
	}

	query := `
		INSERT INTO usage_readings (id, user_id, amount, category, location, ts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + usageColumns

	return scanReadingRow(q.QueryRow(ctx, query,
		reading.ID, reading.UserID, reading.Amount, reading.Category,
		location, reading.Timestamp, reading.CreatedAt,
	))
}

// RecentAmounts returns the amounts of the user's most recent readings,
// newest first, for use as the leak-detection baseline.
func (r *UsageRepository) RecentAmounts(ctx context.Context, q Querier, userID string, limit int) ([]float64, error) {
	query := `
		SELECT amount FROM usage_readings
		WHERE user_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent amounts: %w", err)
	}
	defer rows.Close()

	amounts := make([]float64, 0, limit)
	for rows.Next() {
		var amount float64
		if err := rows.Scan(&amount); err != nil {
			return nil, fmt.Errorf("failed to scan amount: %w", err)
		}
		amounts = append(amounts, amount)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating amount rows: %w", err)
	}

	return amounts, nil
}

// List returns a user's readings, newest first. A zero since means no
// lower bound.
func (r *UsageRepository) List(ctx context.Context, userID string, since time.Time, limit int) ([]*models.UsageReading, error) {
	query := `
		SELECT ` + usageColumns + ` FROM usage_readings
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR ts >= $2)
		ORDER BY ts DESC
		LIMIT $3
	`

	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	rows, err := r.db.Pool.Query(ctx, query, userID, sinceArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	return scanReadingRows(rows)
}

// ListAll returns readings across all users, newest first.
func (r *UsageRepository) ListAll(ctx context.Context, limit int) ([]*models.UsageReading, error) {
	query := `SELECT ` + usageColumns + ` FROM usage_readings ORDER BY ts DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	return scanReadingRows(rows)
}

// Stats aggregates a user's full reading history.
func (r *UsageRepository) Stats(ctx context.Context, userID string, now time.Time) (*models.UsageStats, error) {
	var stats models.UsageStats
	var firstTs *time.Time

	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(*), MIN(ts)
		FROM usage_readings WHERE user_id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&stats.TotalUsage, &stats.TotalRecords, &firstTs)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if stats.TotalRecords == 0 {
		stats.Trend = "stable"
		return &stats, nil
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	sumQuery := `
		SELECT COALESCE(SUM(amount), 0) FROM usage_readings
		WHERE user_id = $1 AND ts >= $2 AND ts < $3
	`
	if err := r.db.Pool.QueryRow(ctx, sumQuery, userID, monthStart, now).Scan(&stats.CurrentMonth); err != nil {
		return nil, database.MapPostgresError(err)
	}
	if err := r.db.Pool.QueryRow(ctx, sumQuery, userID, lastMonthStart, monthStart).Scan(&stats.LastMonth); err != nil {
		return nil, database.MapPostgresError(err)
	}

	totalDays := int(now.Sub(*firstTs).Hours()/24) + 1
	if totalDays > 0 {
		stats.AverageDaily = stats.TotalUsage / float64(totalDays)
	}

	stats.Trend = usageTrend(stats.CurrentMonth, stats.LastMonth)

	return &stats, nil
}

// MonthlyTotal sums a user's usage within [start, end).
func (r *UsageRepository) MonthlyTotal(ctx context.Context, userID string, start, end time.Time) (float64, int, error) {
	var total float64
	var count int

	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM usage_readings
		WHERE user_id = $1 AND ts >= $2 AND ts < $3
	`
	err := r.db.Pool.QueryRow(ctx, query, userID, start, end).Scan(&total, &count)
	if err != nil {
		return 0, 0, database.MapPostgresError(err)
	}

	return total, count, nil
}

// UserIDsWithReadings lists distinct users who submitted readings within
// [start, end). Feeds the monthly summary job.
func (r *UsageRepository) UserIDsWithReadings(ctx context.Context, start, end time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT user_id FROM usage_readings
		WHERE ts >= $1 AND ts < $2
	`

	rows, err := r.db.Pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user id rows: %w", err)
	}

	return ids, nil
}

// CategoryCounts returns the system-wide reading count per category.
func (r *UsageRepository) CategoryCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT category, COUNT(*) FROM usage_readings GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}

	return counts, nil
}

// GrandTotal returns the system-wide sum of all readings and record count.
func (r *UsageRepository) GrandTotal(ctx context.Context) (float64, int, error) {
	var total float64
	var count int

	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM usage_readings`).Scan(&total, &count)
	if err != nil {
		return 0, 0, database.MapPostgresError(err)
	}

	return total, count, nil
}

func usageTrend(current, last float64) string {
	if last <= 0 {
		return "stable"
	}

	change := (current - last) / last * 100
	switch {
	case change > 10:
		return "increasing"
	case change < -10:
		return "decreasing"
	default:
		return "stable"
	}
}

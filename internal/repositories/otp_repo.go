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

// OtpRepository persists one-time code records. Records are append-only
// apart from the attempt counter, the consumed flag, and the finalized
// stamp, all mutated only through conditional single-statement updates so
// that concurrent verifications and finalizations serialize.
type OtpRepository struct {
	db *database.DB
}

func NewOtpRepository(db *database.DB) *OtpRepository {
	return &OtpRepository{db: db}
}

const otpColumns = `id, email, purpose, code, attempt_count, consumed, created_at, expires_at, finalized_at`

func scanOtpRow(scanner rowScanner) (*models.OtpRecord, error) {
	var rec models.OtpRecord

	err := scanner.Scan(
		&rec.ID, &rec.Email, &rec.Purpose, &rec.Code,
		&rec.AttemptCount, &rec.Consumed, &rec.CreatedAt, &rec.ExpiresAt,
		&rec.FinalizedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// Issue supersedes all prior unconsumed records for (email, purpose) and
// inserts the new one as a single transaction, keeping at most one active
// record per pair.
func (r *OtpRepository) Issue(ctx context.Context, rec *models.OtpRecord) (*models.OtpRecord, error) {
	rec.ID = uuid.New().String()

	var created *models.OtpRecord
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE otps SET consumed = TRUE WHERE email = $1 AND purpose = $2 AND consumed = FALSE`,
			rec.Email, rec.Purpose,
		)
		if err != nil {
			return fmt.Errorf("failed to supersede active otps: %w", err)
		}

		query := `
			INSERT INTO otps (id, email, purpose, code, attempt_count, consumed, created_at, expires_at)
			VALUES ($1, $2, $3, $4, 0, FALSE, $5, $6)
			RETURNING ` + otpColumns

		created, err = scanOtpRow(tx.QueryRow(ctx, query,
			rec.ID, rec.Email, rec.Purpose, rec.Code, rec.CreatedAt, rec.ExpiresAt,
		))
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetLatestUnconsumed returns the most recent record for (email, purpose)
// that has not been consumed. The caller decides whether it is expired or
// out of attempts.
func (r *OtpRepository) GetLatestUnconsumed(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otps
		WHERE email = $1 AND purpose = $2 AND consumed = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanOtpRow(r.db.Pool.QueryRow(ctx, query, email, purpose))
}

// GetLatestConsumed returns the most recent consumed record for
// (email, purpose). Used to re-validate that a successful verification
// happened before finalizing registration or a password reset.
func (r *OtpRepository) GetLatestConsumed(ctx context.Context, email, purpose string) (*models.OtpRecord, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otps
		WHERE email = $1 AND purpose = $2 AND consumed = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanOtpRow(r.db.Pool.QueryRow(ctx, query, email, purpose))
}

// IncrementAttempts adds one verification attempt, conditioned on the
// attempt count the caller observed. A concurrent verify that got there
// first makes the update match zero rows, reported as ErrConflict.
func (r *OtpRepository) IncrementAttempts(ctx context.Context, id string, observedAttempts int) (*models.OtpRecord, error) {
	query := `
		UPDATE otps SET attempt_count = attempt_count + 1
		WHERE id = $1 AND consumed = FALSE AND attempt_count = $2
		RETURNING ` + otpColumns

	rec, err := scanOtpRow(r.db.Pool.QueryRow(ctx, query, id, observedAttempts))
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrConflict
		}
		return nil, err
	}

	return rec, nil
}

// Consume marks the record consumed, conditioned on it not being consumed
// already. Exactly one of any set of concurrent callers wins; the rest get
// ErrOtpNotFound.
func (r *OtpRepository) Consume(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE otps SET consumed = TRUE WHERE id = $1 AND consumed = FALSE`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrOtpNotFound
	}

	return nil
}

// Finalize stamps a verified record as spent on its follow-up action,
// conditioned on it not being finalized already. Exactly one of any set
// of concurrent callers wins; the rest get ErrConflict.
func (r *OtpRepository) Finalize(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE otps SET finalized_at = NOW() WHERE id = $1 AND consumed = TRUE AND finalized_at IS NULL`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrConflict
	}

	return nil
}

// CountIssuedSince returns how many codes were issued for an email since
// the given time, across purposes. Used for audit reporting.
func (r *OtpRepository) CountIssuedSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM otps WHERE email = $1 AND created_at >= $2`,
		email, since,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/models"
)

var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when trying to create a user that already exists
	ErrUserExists = errors.New("user already exists")
)

const userColumns = `tg_id, tier, premium_until, plans_left, media_left, quota_next_reset_at, current_plan, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user row
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.Tier == "" {
		user.Tier = models.TierFree
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (tg_id, tier, premium_until, plans_left, media_left, quota_next_reset_at, current_plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		user.TgID, user.Tier, user.PremiumUntil, user.PlansLeft, user.MediaLeft,
		user.QuotaNextResetAt, user.CurrentPlan, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByTgID retrieves a user by Telegram identity
func (r *UserRepository) GetByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tg_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, tgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// ResetQuota restores the daily counters and advances the reset boundary.
// The deadline guard makes the reset idempotent: once a racing caller (the
// sweep worker or a concurrent request) has advanced the boundary, later
// attempts for the same period match no row.
func (r *UserRepository) ResetQuota(ctx context.Context, tgID int64, plans, media int, nextReset, now time.Time) (bool, error) {
	query := `
		UPDATE users
		SET plans_left = $2,
		    media_left = $3,
		    quota_next_reset_at = $4,
		    updated_at = $5
		WHERE tg_id = $1 AND quota_next_reset_at <= $5
	`
	rowsAffected, err := r.db.Exec(ctx, query, tgID, plans, media, nextReset, now)
	if err != nil {
		return false, fmt.Errorf("failed to reset quota: %w", err)
	}

	return rowsAffected > 0, nil
}

// ConsumeUnit decrements one unit of the given counter. The decrement only
// matches a row while the counter is above zero, so two concurrent requests
// can never both spend the last unit.
func (r *UserRepository) ConsumeUnit(ctx context.Context, tgID int64, kind models.QuotaKind) (bool, error) {
	var query string
	switch kind {
	case models.QuotaMedia:
		query = `UPDATE users SET media_left = media_left - 1, updated_at = $2 WHERE tg_id = $1 AND media_left > 0`
	case models.QuotaPlans:
		query = `UPDATE users SET plans_left = plans_left - 1, updated_at = $2 WHERE tg_id = $1 AND plans_left > 0`
	default:
		return false, fmt.Errorf("unknown quota kind: %s", kind)
	}

	rowsAffected, err := r.db.Exec(ctx, query, tgID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to consume %s unit: %w", kind, err)
	}

	return rowsAffected > 0, nil
}

// SetPremium extends the premium entitlement and refills the counters to the
// premium limits in a single statement, so a purchase takes effect at once.
func (r *UserRepository) SetPremium(ctx context.Context, tgID int64, until time.Time, plans, media int, nextReset time.Time) error {
	// A developer label is never downgraded by a purchase.
	query := `
		UPDATE users
		SET tier = CASE WHEN tier = 'developer' THEN tier ELSE $2 END,
		    premium_until = $3,
		    plans_left = $4,
		    media_left = $5,
		    quota_next_reset_at = $6,
		    updated_at = $7
		WHERE tg_id = $1
	`
	rowsAffected, err := r.db.Exec(ctx, query,
		tgID, models.TierPremium, until, plans, media, nextReset, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set premium: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SaveCurrentPlan stores the last generated plan snapshot
func (r *UserRepository) SaveCurrentPlan(ctx context.Context, tgID int64, plan json.RawMessage) error {
	query := `UPDATE users SET current_plan = $2, updated_at = $3 WHERE tg_id = $1`

	rowsAffected, err := r.db.Exec(ctx, query, tgID, plan, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save current plan: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ListResetDue returns users whose reset deadline has passed, oldest first.
// Used by the sweep worker; batched by limit.
func (r *UserRepository) ListResetDue(ctx context.Context, now time.Time, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE quota_next_reset_at <= $1
		ORDER BY quota_next_reset_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reset-due users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// scanUser scans a user row from a pgx.Row or pgx.Rows
func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.TgID, &user.Tier, &user.PremiumUntil, &user.PlansLeft, &user.MediaLeft,
		&user.QuotaNextResetAt, &user.CurrentPlan, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// isUniqueViolation checks if an error is a unique constraint violation
func isUniqueViolation(err error) bool {
	// PostgreSQL unique violation error code is 23505
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "23505")
}

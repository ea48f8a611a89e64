package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/models"
)

// ErrPaymentExists is returned when a charge has already been recorded.
// Payment webhooks are retried by the upstream platform; the unique
// (tg_id, charge_id) constraint is the idempotency barrier.
var ErrPaymentExists = errors.New("payment already recorded")

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create records a payment. Returns ErrPaymentExists if the same charge was
// recorded before, in which case activation must be skipped.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	payment.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO payments (id, tg_id, charge_id, currency, amount, plan, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		payment.ID, payment.TgID, payment.ChargeID, payment.Currency,
		payment.Amount, payment.Plan, payment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPaymentExists
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

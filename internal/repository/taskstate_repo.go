package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/models"
)

// TaskStateRepository handles the per-user task-state document
type TaskStateRepository struct {
	db *database.DB
}

// NewTaskStateRepository creates a new task-state repository
func NewTaskStateRepository(db *database.DB) *TaskStateRepository {
	return &TaskStateRepository{db: db}
}

// Replace stores the document wholesale. There is no field-level merge; the
// last pushed document is authoritative.
func (r *TaskStateRepository) Replace(ctx context.Context, tgID int64, doc json.RawMessage) error {
	query := `
		INSERT INTO task_states (tg_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tg_id) DO UPDATE
		SET doc = EXCLUDED.doc,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, tgID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to replace task state: %w", err)
	}

	return nil
}

// Get returns the user's task-state document, or the default empty document
// if the user has never pushed one.
func (r *TaskStateRepository) Get(ctx context.Context, tgID int64) (*models.TaskState, error) {
	query := `SELECT tg_id, doc, updated_at FROM task_states WHERE tg_id = $1`

	var state models.TaskState
	err := r.db.QueryRow(ctx, query, tgID).Scan(&state.TgID, &state.Doc, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.TaskState{TgID: tgID, Doc: models.DefaultTaskStateDoc}, nil
		}
		return nil, fmt.Errorf("failed to get task state: %w", err)
	}

	return &state, nil
}

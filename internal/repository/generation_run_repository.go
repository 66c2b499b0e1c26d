package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// GenerationRunRepository persists generation run records.
type GenerationRunRepository struct {
	db *sqlx.DB
}

// NewGenerationRunRepository constructs a GenerationRunRepository.
func NewGenerationRunRepository(db *sqlx.DB) *GenerationRunRepository {
	return &GenerationRunRepository{db: db}
}

// Create stores a new run in PENDING state.
func (r *GenerationRunRepository) Create(ctx context.Context, run *models.GenerationRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO generation_runs (id, scope, class_id, status, error_code, error_message, classes_total, entries_written, requested_by, started_at, finished_at, created_at) VALUES (:id, :scope, :class_id, :status, :error_code, :error_message, :classes_total, :entries_written, :requested_by, :started_at, :finished_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create generation run: %w", err)
	}
	return nil
}

// MarkRunning transitions a run into RUNNING and records its start time.
func (r *GenerationRunRepository) MarkRunning(ctx context.Context, id string) error {
	const query = `UPDATE generation_runs SET status = $1, started_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, models.RunStatusRunning, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark generation run running: %w", err)
	}
	return nil
}

// Finish records the terminal state of a run together with its outcome.
func (r *GenerationRunRepository) Finish(ctx context.Context, id string, status models.RunStatus, errorCode, errorMessage *string, classesTotal, entriesWritten int) error {
	const query = `UPDATE generation_runs SET status = $1, error_code = $2, error_message = $3, classes_total = $4, entries_written = $5, finished_at = $6 WHERE id = $7`
	if _, err := r.db.ExecContext(ctx, query, status, errorCode, errorMessage, classesTotal, entriesWritten, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("finish generation run: %w", err)
	}
	return nil
}

// GetByID returns a run by its ID.
func (r *GenerationRunRepository) GetByID(ctx context.Context, id string) (*models.GenerationRun, error) {
	const query = `SELECT id, scope, class_id, status, error_code, error_message, classes_total, entries_written, requested_by, started_at, finished_at, created_at FROM generation_runs WHERE id = $1`
	var run models.GenerationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

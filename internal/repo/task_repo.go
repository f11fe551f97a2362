package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/strelka-bio/strelka/internal/domain"
)

// TaskRepo — репозиторий выполнений задач.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Upsert сохраняет выполнение задачи; повторная запись с тем же ID
// обновляет статус и времена.
func (r *TaskRepo) Upsert(ctx context.Context, tr *domain.TaskRun) error {
	query := `
		INSERT INTO task_runs (id, run_id, task, sample_key, status,
		                       started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at,
		    error = EXCLUDED.error
	`
	_, err := r.pool.Exec(ctx, query,
		tr.ID,
		tr.RunID,
		tr.Task,
		nullString(tr.SampleKey),
		tr.Status,
		tr.StartedAt,
		tr.FinishedAt,
		nullString(tr.Error),
		tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task run: %w", err)
	}
	return nil
}

// ListByRunID возвращает все выполнения run'а.
func (r *TaskRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.TaskRun, error) {
	query := `
		SELECT id, run_id, task, sample_key, status,
		       started_at, finished_at, error, created_at
		FROM task_runs
		WHERE run_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var out []domain.TaskRun
	for rows.Next() {
		tr, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// CountByRunAndStatus возвращает количество выполнений run'а в статусе.
func (r *TaskRepo) CountByRunAndStatus(ctx context.Context, runID uuid.UUID, status domain.TaskStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_runs WHERE run_id = $1 AND status = $2
	`, runID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count task runs: %w", err)
	}
	return count, nil
}

// --- Helpers ---

func scanTaskRun(row pgx.Row) (*domain.TaskRun, error) {
	var tr domain.TaskRun
	var sampleKey, trError *string

	err := row.Scan(
		&tr.ID,
		&tr.RunID,
		&tr.Task,
		&sampleKey,
		&tr.Status,
		&tr.StartedAt,
		&tr.FinishedAt,
		&trError,
		&tr.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task run: %w", err)
	}

	if sampleKey != nil {
		tr.SampleKey = *sampleKey
	}
	if trError != nil {
		tr.Error = *trError
	}

	return &tr, nil
}

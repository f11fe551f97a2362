package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/strelka-bio/strelka/internal/domain"
)

// History — история запусков поверх RunRepo и TaskRepo.
// Подключается к оркестратору как опциональный приёмник; все записи
// best effort.
type History struct {
	runs  *RunRepo
	tasks *TaskRepo
}

// NewHistory создаёт History над пулом соединений.
func NewHistory(pool *pgxpool.Pool) *History {
	return &History{
		runs:  NewRunRepo(pool),
		tasks: NewTaskRepo(pool),
	}
}

// SaveRun записывает стартовавший run.
func (h *History) SaveRun(ctx context.Context, run *domain.Run) error {
	return h.runs.Create(ctx, run)
}

// FinishRun записывает финальный статус run'а.
func (h *History) FinishRun(ctx context.Context, run *domain.Run) error {
	return h.runs.Update(ctx, run)
}

// SaveTaskRun записывает выполнение задачи.
func (h *History) SaveTaskRun(ctx context.Context, tr *domain.TaskRun) error {
	return h.tasks.Upsert(ctx, tr)
}

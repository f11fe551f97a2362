package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/repo"
)

// NewRunsCmd создаёт команду просмотра истории запусков.
//
// Без аргументов печатает последние run'ы из базы (DB_URL); с ID run'а —
// его выполнения задач и сводку по статусам.
func NewRunsCmd(outputFn func() *Output) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history from the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			pool, err := repo.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connect history database: %w", err)
			}
			defer pool.Close()

			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid run id %q: %w", args[0], err)
				}
				return showRun(ctx, out, pool, id)
			}
			return listRuns(ctx, out, pool, status, limit)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by run status (RUNNING|SUCCEEDED|FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")

	return cmd
}

// listRuns печатает последние run'ы, новые сверху.
func listRuns(ctx context.Context, out *Output, pool *pgxpool.Pool, status string, limit int) error {
	runs, err := repo.NewRunRepo(pool).List(ctx, repo.RunFilter{
		Status: domain.RunStatus(status),
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	headers := []string{"ID", "PIPELINE", "STATUS", "STARTED", "DURATION"}
	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			run.ID.String(),
			run.Pipeline,
			string(run.Status),
			formatTime(run.StartedAt),
			formatDuration(run.Duration()),
		}
	}
	out.Print(headers, rows, runs)
	return nil
}

// showRun печатает один run, его выполнения задач и сводку по статусам.
func showRun(ctx context.Context, out *Output, pool *pgxpool.Pool, id uuid.UUID) error {
	run, err := repo.NewRunRepo(pool).GetByID(ctx, id)
	if err != nil {
		return err
	}

	tasks := repo.NewTaskRepo(pool)
	taskRuns, err := tasks.ListByRunID(ctx, run.ID)
	if err != nil {
		return err
	}

	headers := []string{"TASK", "SAMPLE", "STATUS", "DURATION", "ERROR"}
	rows := make([][]string, len(taskRuns))
	for i, tr := range taskRuns {
		rows[i] = []string{
			tr.Task,
			tr.SampleKey,
			string(tr.Status),
			formatDuration(tr.Duration()),
			tr.Error,
		}
	}

	type runDetail struct {
		Run   *domain.Run      `json:"run"`
		Tasks []domain.TaskRun `json:"tasks"`
	}
	out.Print(headers, rows, runDetail{Run: run, Tasks: taskRuns})

	succeeded, err := tasks.CountByRunAndStatus(ctx, run.ID, domain.TaskStatusSucceeded)
	if err != nil {
		return err
	}
	failed, err := tasks.CountByRunAndStatus(ctx, run.ID, domain.TaskStatusFailed)
	if err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Run %s: %s, %d succeeded, %d failed",
		run.ID, run.Status, succeeded, failed))
	return nil
}

// formatTime форматирует время для таблицы; nil — прочерк.
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// formatDuration форматирует продолжительность; нулевая — прочерк.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

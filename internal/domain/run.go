package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один запуск пайплайна над набором входных файлов.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя пайплайна (для отчёта и истории запусков).
	Pipeline string `json:"pipeline"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Params — параметры запуска (протокол, геном, ссылки на референсы).
	// Попадают в отчёт и в историю запусков как есть.
	Params map[string]any `json:"params,omitempty"`

	// StartedAt — время начала выполнения графа.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(pipeline string, params map[string]any) *Run {
	return &Run{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Status:    RunStatusPending,
		Params:    params,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// TaskFailure — запись о провале одного выполнения задачи,
// попадает в итоговый отчёт run'а.
type TaskFailure struct {
	// Task — имя задачи.
	Task string `json:"task"`

	// SampleKey — ключ образца (пустой для collecting-задач).
	SampleKey string `json:"sample_key,omitempty"`

	// Error — причина провала.
	Error string `json:"error"`

	// Ignorable — провал не повлиял на статус run'а.
	Ignorable bool `json:"ignorable"`
}

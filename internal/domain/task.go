package domain

import (
	"time"

	"github.com/google/uuid"
)

// BindingMode — режим доставки входного потока задаче.
type BindingMode string

const (
	// BindStreaming — задача выполняется по одному разу на каждый item.
	BindStreaming BindingMode = "streaming"

	// BindCollecting — задача получает весь закрытый поток одной пачкой
	// (отсортированной по ключу образца) после закрытия потока продюсером.
	BindCollecting BindingMode = "collecting"

	// BindBroadcast — поток из одного item'а (например, индекс выравнивателя),
	// который спаривается с каждым item'ом остальных streaming-входов,
	// без корреляции по ключу образца.
	BindBroadcast BindingMode = "broadcast"
)

// InputBinding — привязка входного потока к задаче.
type InputBinding struct {
	// Stream — имя потока.
	Stream string

	// Mode — режим доставки.
	Mode BindingMode

	// Optional — допускает отсутствие продюсера (отсечённая условная
	// ветка): задача получает пустой закрытый поток вместо ошибки сборки.
	Optional bool
}

// OutputDecl — объявление выходного потока задачи.
type OutputDecl struct {
	// Stream — имя потока.
	Stream string

	// Collecting — true, если потребители потока получают его одной
	// пачкой после закрытия.
	Collecting bool

	// Pattern — glob-шаблон (по базовому имени файла), по которому
	// артефакты выполнения распределяются в этот поток.
	Pattern string
}

// RouteRule — правило классификатора назначения: артефакт, имя которого
// содержит Marker, публикуется в подкаталог Subdir.
type RouteRule struct {
	Marker string
	Subdir string
}

// RouteSpec — спецификация маршрутизации выходных артефактов задачи.
//
// Либо статический подкаталог (Subdir), либо классификатор по имени
// файла (Rules). Классификатор обязан быть тотальным: каждый артефакт
// задачи должен попасть ровно под одно правило.
type RouteSpec struct {
	Subdir string
	Rules  []RouteRule
}

// TaskDef — определение задачи: узел графа зависимостей.
//
// Рёбра графа выводятся из привязок потоков: задача B зависит от задачи A,
// если B подписана на поток, который производит A. Отдельного списка
// зависимостей нет.
type TaskDef struct {
	// Name — уникальное имя задачи в графе.
	Name string

	// Tool — вид работы для реестра executor'ов (обычно "process").
	Tool string

	// Inputs — привязки входных потоков.
	Inputs []InputBinding

	// Outputs — объявления выходных потоков.
	Outputs []OutputDecl

	// Command — шаблон argv внешней команды. Каждый элемент рендерится
	// через engine.RenderArgs с доступом к {{ .Inputs.x }}, {{ .Params.x }},
	// {{ .SampleKey }}, {{ .OutDir }}.
	Command []string

	// When — предикат активации, вычисляется один раз при сборке графа.
	// nil означает "всегда активна".
	When func() bool

	// Ignorable — провал задачи не отменяет зависимые задачи
	// и не переводит run в статус FAILED.
	Ignorable bool

	// Route — маршрутизация выходных артефактов в итоговую раскладку.
	// nil — артефакты публикуются в подкаталог с именем задачи.
	Route *RouteSpec
}

// IsCollecting возвращает true, если задача выполняется один раз над
// полной пачкой (хотя бы один вход с режимом BindCollecting).
func (t *TaskDef) IsCollecting() bool {
	for _, in := range t.Inputs {
		if in.Mode == BindCollecting {
			return true
		}
	}
	return false
}

// TaskRun — одно выполнение задачи (для streaming-задач — на один item,
// для collecting-задач — на всю пачку).
type TaskRun struct {
	// ID — уникальный идентификатор выполнения.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// Task — имя задачи из графа.
	Task string `json:"task"`

	// SampleKey — ключ образца (пустой для collecting-задач).
	SampleKey string `json:"sample_key,omitempty"`

	// Status — текущий статус выполнения.
	Status TaskStatus `json:"status"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskRun создаёт выполнение задачи в статусе PENDING.
func NewTaskRun(runID uuid.UUID, task, sampleKey string) *TaskRun {
	return &TaskRun{
		ID:        uuid.New(),
		RunID:     runID,
		Task:      task,
		SampleKey: sampleKey,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (t *TaskRun) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkRunning переводит выполнение в статус RUNNING.
func (t *TaskRun) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

// MarkSucceeded переводит выполнение в статус SUCCEEDED.
func (t *TaskRun) MarkSucceeded() {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.FinishedAt = &now
}

// MarkFailed переводит выполнение в статус FAILED с ошибкой.
func (t *TaskRun) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Error = err
}

// MarkCancelled переводит выполнение в статус CANCELLED.
// Используется для задач, которые никогда не стартовали из-за провала
// зависимости.
func (t *TaskRun) MarkCancelled() {
	now := time.Now()
	t.Status = TaskStatusCancelled
	t.FinishedAt = &now
}

package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusPending — run создан, граф ещё не выполняется.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все не-ignorable задачи завершились успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы одна не-ignorable задача провалилась.
	// Частичные результаты успешных ветвей при этом остаются опубликованными.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// TaskStatus — статус одного выполнения задачи.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → SUCCEEDED
//	                          ↘ FAILED
//	        ↘ CANCELLED (зависимость провалилась, выполнение не стартовало)
type TaskStatus string

const (
	// TaskStatusPending — выполнение ожидает доставки входов.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusReady — все требуемые входы доставлены.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusRunning — внешняя команда выполняется.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — команда завершилась с нулевым кодом.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — команда завершилась с ошибкой.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusCancelled — выполнение отменено до старта из-за провала
	// зависимости (транзитивно).
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

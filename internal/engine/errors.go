package engine

import "errors"

// Ошибки ключей образцов.
var (
	// ErrInvalidSampleKey — после снятия суффиксов осталась пустая строка.
	// Такой ключ разорвал бы корреляцию артефактов между стадиями.
	ErrInvalidSampleKey = errors.New("invalid sample key")
)

// Ошибки потоков.
var (
	// ErrStreamClosed — публикация в уже закрытый поток.
	// Нарушение инварианта движка, фатально для всего run'а.
	ErrStreamClosed = errors.New("publish to closed stream")

	// ErrWrongStreamKind — streaming-чтение collecting-потока или наоборот.
	ErrWrongStreamKind = errors.New("wrong stream kind for this operation")
)

// Ошибки сборки графа.
var (
	// ErrCyclicGraph — обнаружен цикл в зависимостях задач.
	ErrCyclicGraph = errors.New("cyclic task graph")

	// ErrDanglingInput — задача подписана на поток, который никто не объявлял.
	ErrDanglingInput = errors.New("input stream has no producer")

	// ErrUnsatisfiedDependency — активная задача зависит от потока
	// отсечённой условной ветки и не объявила Optional-фолбэк.
	ErrUnsatisfiedDependency = errors.New("dependency pruned by activation predicate")

	// ErrDuplicateTask — несколько задач с одинаковым именем.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrDuplicateProducer — у потока больше одного продюсера.
	// Потоки строго single-writer; fan-in выражается через Merge.
	ErrDuplicateProducer = errors.New("stream has more than one producer")
)

// Ошибки рендеринга шаблонов команд.
var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")
)

// ValidationError — ошибка сборки графа с контекстом.
type ValidationError struct {
	Task    string // имя задачи, где произошла ошибка
	Stream  string // поток, вызвавший ошибку (если применимо)
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Task != "" {
		return "task " + e.Task + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку сборки графа.
func NewValidationError(task, stream, message string, err error) *ValidationError {
	return &ValidationError{
		Task:    task,
		Stream:  stream,
		Message: message,
		Err:     err,
	}
}

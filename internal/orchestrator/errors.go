package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNoInputs — run стартует без единого входного item'а.
	ErrNoInputs = errors.New("run has no input items")

	// ErrUnknownSource — входные item'ы адресованы потоку,
	// не объявленному в графе как источник.
	ErrUnknownSource = errors.New("input items for unknown source stream")

	// ErrRunAborted — run прерван фатальной ошибкой движка
	// (нарушение инварианта потоков).
	ErrRunAborted = errors.New("run aborted by engine invariant violation")
)

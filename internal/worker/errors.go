package worker

import "errors"

// Ошибки выполнения.
var (
	// ErrUnknownTool — вид работы не зарегистрирован в реестре.
	ErrUnknownTool = errors.New("tool kind not registered")

	// ErrEmptyCommand — задача не объявила команду.
	ErrEmptyCommand = errors.New("task has empty command")

	// ErrToolFailed — внешняя команда завершилась с ненулевым кодом.
	ErrToolFailed = errors.New("external tool failed")

	// ErrNoArtifacts — команда завершилась успешно, но ни один
	// объявленный выходной шаблон не совпал с файлами.
	ErrNoArtifacts = errors.New("no declared output artifacts found")
)

package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Request — входные данные одного выполнения.
type Request struct {
	// Task — имя задачи (для логов и ошибок).
	Task string

	// Argv — уже отрендеренная команда.
	Argv []string

	// WorkDir — рабочий каталог выполнения. Инструменты пишут выходные
	// файлы сюда; сбор артефактов идёт только по этому каталогу.
	WorkDir string

	// OutputPatterns — glob-шаблоны (по базовому имени) объявленных
	// выходных файлов.
	OutputPatterns []string
}

// Result — результат одного выполнения.
type Result struct {
	// Artifacts — найденные выходные файлы (абсолютные пути,
	// отсортированы для детерминизма).
	Artifacts []string

	// Stdout — захваченный stdout инструмента.
	Stdout []byte

	// Stderr — захваченный stderr инструмента.
	Stderr []byte

	// ExitCode — код возврата процесса.
	ExitCode int
}

// Executor — интерфейс выполнения одной единицы работы.
//
// Реализация по умолчанию — ProcessExecutor; тесты оркестратора
// подставляют фейки.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Registry — реестр executor'ов по виду работы задачи.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry создаёт реестр с ProcessExecutor для вида "process".
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[string]Executor)}
	r.Register("process", &ProcessExecutor{})
	return r
}

// Register добавляет executor для вида работы.
func (r *Registry) Register(tool string, executor Executor) {
	r.executors[tool] = executor
}

// Get возвращает executor для вида работы.
func (r *Registry) Get(tool string) (Executor, error) {
	executor, ok := r.executors[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	return executor, nil
}

// ProcessExecutor запускает внешнюю команду.
//
// Контракт с инструментом: нулевой код возврата — успех; stdout/stderr
// захватываются для логов; выходные файлы ищутся в рабочем каталоге
// по объявленным glob-шаблонам после завершения.
type ProcessExecutor struct{}

// Execute выполняет одну внешнюю команду.
func (e *ProcessExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("%w: task %s", ErrEmptyCommand, req.Task)
	}

	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%w: %s exited with code %d: %s",
				ErrToolFailed, req.Argv[0], result.ExitCode, stderrTail(stderr.Bytes()))
		}
		return result, fmt.Errorf("run %s: %w", req.Argv[0], err)
	}

	artifacts, err := Harvest(req.WorkDir, req.OutputPatterns)
	if err != nil {
		return result, err
	}
	result.Artifacts = artifacts

	if len(req.OutputPatterns) > 0 && len(artifacts) == 0 {
		return result, fmt.Errorf("%w: task %s, patterns %v",
			ErrNoArtifacts, req.Task, req.OutputPatterns)
	}

	return result, nil
}

// Harvest собирает артефакты по glob-шаблонам в рабочем каталоге.
// Результат отсортирован и дедуплицирован: один файл может совпасть
// с несколькими шаблонами.
func Harvest(workDir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(workDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad output pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			seen[m] = true
		}
	}

	artifacts := make([]string, 0, len(seen))
	for path := range seen {
		artifacts = append(artifacts, path)
	}
	sort.Strings(artifacts)
	return artifacts, nil
}

// stderrTail возвращает последние строки stderr для сообщения об ошибке.
func stderrTail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return "(no stderr)"
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

package orchestrator

import (
	"sync"

	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/engine"
)

// RunState — состояние выполнения одного run в памяти.
//
// Создаётся на время Execute и после завершения отдаётся наружу
// (отчёту и истории запусков) уже без конкурентного доступа.
type RunState struct {
	run   *domain.Run
	graph *engine.Graph

	mu sync.RWMutex

	// instances — все выполнения задач в порядке создания.
	instances []*domain.TaskRun

	// failures — провалы для итогового отчёта.
	failures []domain.TaskFailure

	// failedTasks — имена задач с не-ignorable провалами.
	// По ним вычисляется отмена транзитивных зависимостей.
	failedTasks map[string]bool

	// fatal — нарушение инварианта движка, фатальное для всего run'а.
	fatal error
}

// NewRunState создаёт состояние для run'а и собранного графа.
func NewRunState(run *domain.Run, graph *engine.Graph) *RunState {
	return &RunState{
		run:         run,
		graph:       graph,
		failedTasks: make(map[string]bool),
	}
}

// Run возвращает run.
func (s *RunState) Run() *domain.Run { return s.run }

// Graph возвращает граф run'а.
func (s *RunState) Graph() *engine.Graph { return s.graph }

// AddInstance регистрирует выполнение задачи.
func (s *RunState) AddInstance(tr *domain.TaskRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, tr)
}

// RecordFailure фиксирует провал выполнения.
func (s *RunState) RecordFailure(task *domain.TaskDef, sampleKey, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, domain.TaskFailure{
		Task:      task.Name,
		SampleKey: sampleKey,
		Error:     errMsg,
		Ignorable: task.Ignorable,
	})
	if !task.Ignorable {
		s.failedTasks[task.Name] = true
	}
}

// SetFatal фиксирует фатальную ошибку движка. Первая ошибка побеждает.
func (s *RunState) SetFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

// Fatal возвращает фатальную ошибку движка (nil, если её не было).
func (s *RunState) Fatal() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fatal
}

// HasRunFailure возвращает true, если run должен завершиться FAILED:
// есть хотя бы один не-ignorable провал или фатальная ошибка.
func (s *RunState) HasRunFailure() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.failedTasks) > 0 || s.fatal != nil
}

// UpstreamFailed возвращает true, если узел транзитивно зависит от
// задачи с не-ignorable провалом.
func (s *RunState) UpstreamFailed(node *engine.Node) bool {
	s.mu.RLock()
	failed := make([]string, 0, len(s.failedTasks))
	for task := range s.failedTasks {
		failed = append(failed, task)
	}
	s.mu.RUnlock()

	for _, task := range failed {
		if node.DependsOnTransitively(task) {
			return true
		}
	}
	return false
}

// Failures возвращает копию списка провалов.
func (s *RunState) Failures() []domain.TaskFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TaskFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Instances возвращает копию списка выполнений.
func (s *RunState) Instances() []*domain.TaskRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.TaskRun, len(s.instances))
	copy(out, s.instances)
	return out
}

// InstancesOf возвращает выполнения одной задачи.
func (s *RunState) InstancesOf(task string) []*domain.TaskRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.TaskRun
	for _, tr := range s.instances {
		if tr.Task == task {
			out = append(out, tr)
		}
	}
	return out
}

// RunStats — сводка выполнения run'а.
type RunStats struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
}

// Stats возвращает сводку по выполнениям.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{Total: len(s.instances)}
	for _, tr := range s.instances {
		switch tr.Status {
		case domain.TaskStatusSucceeded:
			stats.Succeeded++
		case domain.TaskStatusFailed:
			stats.Failed++
		case domain.TaskStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Package report собирает итоговую сводку run'а: упорядоченные поля от
// завершившихся стадий, рендеринг в JSON и текст, отправка уведомления.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/orchestrator"
)

// Имена файлов отчёта в каталоге результатов.
const (
	JSONFileName = "report.json"
	TextFileName = "report.txt"
)

// Field — одно поле сводки. Порядок полей — порядок добавления.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TaskSummary — сводка по одной задаче графа.
type TaskSummary struct {
	Task      string `json:"task"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

// Summary — итоговая сводка run'а.
type Summary struct {
	RunID      string         `json:"run_id"`
	Pipeline   string         `json:"pipeline"`
	Status     string         `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Params     map[string]any `json:"params,omitempty"`

	// Fields — упорядоченные поля, накопленные по ходу выполнения.
	Fields []Field `json:"fields,omitempty"`

	// Tasks — сводка по задачам в топологическом порядке графа.
	Tasks []TaskSummary `json:"tasks"`

	// Failures — все провалы выполнения, включая ignorable.
	Failures []domain.TaskFailure `json:"failures,omitempty"`

	Error string `json:"error,omitempty"`
}

// Aggregator накапливает поля сводки по ходу выполнения run'а.
// Безопасен для конкурентного использования: стадии завершаются
// параллельно.
type Aggregator struct {
	mu     sync.Mutex
	fields []Field
}

// NewAggregator создаёт пустой Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add добавляет поле сводки. Порядок добавления сохраняется в отчёте.
func (a *Aggregator) Add(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = append(a.fields, Field{Key: key, Value: value})
}

// Addf добавляет форматированное поле сводки.
func (a *Aggregator) Addf(key, format string, args ...any) {
	a.Add(key, fmt.Sprintf(format, args...))
}

// Build собирает финальную сводку из состояния завершённого run'а.
func (a *Aggregator) Build(state *orchestrator.RunState) *Summary {
	run := state.Run()

	a.mu.Lock()
	fields := make([]Field, len(a.fields))
	copy(fields, a.fields)
	a.mu.Unlock()

	s := &Summary{
		RunID:      run.ID.String(),
		Pipeline:   run.Pipeline,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Params:     run.Params,
		Fields:     fields,
		Failures:   state.Failures(),
		Error:      run.Error,
	}
	if d := run.Duration(); d > 0 {
		s.Duration = d.Round(time.Millisecond).String()
	}

	// Сводка по задачам в топологическом порядке графа.
	for _, node := range state.Graph().Order {
		ts := TaskSummary{Task: node.Task.Name}
		for _, tr := range state.InstancesOf(node.Task.Name) {
			ts.Total++
			switch tr.Status {
			case domain.TaskStatusSucceeded:
				ts.Succeeded++
			case domain.TaskStatusFailed:
				ts.Failed++
			case domain.TaskStatusCancelled:
				ts.Cancelled++
			}
		}
		s.Tasks = append(s.Tasks, ts)
	}

	return s
}

// Write рендерит сводку в report.json и report.txt внутри outDir.
func (s *Summary) Write(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, JSONFileName), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", JSONFileName, err)
	}

	if err := os.WriteFile(filepath.Join(outDir, TextFileName), []byte(s.Text()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", TextFileName, err)
	}
	return nil
}

// Text рендерит сводку в человекочитаемый текст.
func (s *Summary) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Pipeline: %s\n", s.Pipeline)
	fmt.Fprintf(&b, "Run:      %s\n", s.RunID)
	fmt.Fprintf(&b, "Status:   %s\n", s.Status)
	if s.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", s.Duration)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error:    %s\n", s.Error)
	}

	if len(s.Fields) > 0 {
		b.WriteString("\nSummary\n")
		width := 0
		for _, f := range s.Fields {
			if len(f.Key) > width {
				width = len(f.Key)
			}
		}
		for _, f := range s.Fields {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, f.Key, f.Value)
		}
	}

	if len(s.Tasks) > 0 {
		b.WriteString("\nTasks\n")
		for _, ts := range s.Tasks {
			fmt.Fprintf(&b, "  %-24s total=%d ok=%d failed=%d cancelled=%d\n",
				ts.Task, ts.Total, ts.Succeeded, ts.Failed, ts.Cancelled)
		}
	}

	if len(s.Failures) > 0 {
		b.WriteString("\nFailures\n")
		for _, f := range s.Failures {
			sample := f.SampleKey
			if sample == "" {
				sample = "-"
			}
			marker := ""
			if f.Ignorable {
				marker = " (ignorable)"
			}
			fmt.Fprintf(&b, "  %s [%s]%s: %s\n", f.Task, sample, marker, f.Error)
		}
	}

	return b.String()
}

// Package router отвечает за итоговую раскладку артефактов:
// каждому выходному файлу задачи назначается ровно один путь назначения
// внутри каталога результатов run'а.
package router

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/strelka-bio/strelka/internal/domain"
)

// Ошибки маршрутизации.
var (
	// ErrUnroutableArtifact — артефакт не попал ровно под одно правило
	// классификатора. Классификатор обязан быть тотальным.
	ErrUnroutableArtifact = errors.New("artifact matches no single routing rule")
)

// Router раскладывает артефакты по каталогу результатов.
type Router struct {
	// outDir — корень каталога результатов run'а.
	outDir string
}

// New создаёт Router с корнем результатов outDir.
func New(outDir string) *Router {
	return &Router{outDir: outDir}
}

// OutDir возвращает корень каталога результатов.
func (r *Router) OutDir() string { return r.outDir }

// Destination вычисляет путь назначения артефакта задачи.
//
// Приоритет: статический подкаталог RouteSpec.Subdir; иначе классификатор
// RouteSpec.Rules по маркеру в имени файла; при nil-спецификации —
// подкаталог с именем задачи. Классификатор тотален: ноль или больше
// одного совпадения — ErrUnroutableArtifact.
func (r *Router) Destination(task *domain.TaskDef, artifact string) (string, error) {
	name := filepath.Base(artifact)

	spec := task.Route
	if spec == nil {
		return filepath.Join(r.outDir, task.Name, name), nil
	}

	if spec.Subdir != "" {
		return filepath.Join(r.outDir, spec.Subdir, name), nil
	}

	subdir, err := classify(spec.Rules, name)
	if err != nil {
		return "", fmt.Errorf("task %s: artifact %q: %w", task.Name, name, err)
	}
	return filepath.Join(r.outDir, subdir, name), nil
}

// Publish перемещает артефакт в вычисленный путь назначения.
// Возвращает итоговый путь.
func (r *Router) Publish(task *domain.TaskDef, artifact string) (string, error) {
	dest, err := r.Destination(task, artifact)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(artifact, dest); err != nil {
		return "", fmt.Errorf("publish %s: %w", filepath.Base(artifact), err)
	}
	return dest, nil
}

// classify находит единственное правило, маркер которого содержится
// в имени артефакта.
func classify(rules []domain.RouteRule, name string) (string, error) {
	var matched []string
	for _, rule := range rules {
		if strings.Contains(name, rule.Marker) {
			matched = append(matched, rule.Subdir)
		}
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return "", ErrUnroutableArtifact
	default:
		return "", fmt.Errorf("%w: %d rules matched", ErrUnroutableArtifact, len(matched))
	}
}

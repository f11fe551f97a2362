package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/strelka-bio/strelka/internal/domain"
)

// Node — узел графа задач.
type Node struct {
	// Task — определение задачи.
	Task *domain.TaskDef

	// InStreams — потоки входных привязок (выровнены с Task.Inputs).
	InStreams []*Stream

	// OutStreams — потоки выходных объявлений (выровнены с Task.Outputs).
	OutStreams []*Stream

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// InDegree — количество входящих рёбер.
	InDegree int
}

// DependsOnTransitively возвращает true, если узел транзитивно зависит
// от задачи с именем task.
func (n *Node) DependsOnTransitively(task string) bool {
	seen := make(map[string]bool)
	var walk func(*Node) bool
	walk = func(cur *Node) bool {
		for _, dep := range cur.DependsOn {
			if seen[dep.Task.Name] {
				continue
			}
			seen[dep.Task.Name] = true
			if dep.Task.Name == task || walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(n)
}

// mergeDecl — объявление fan-in потока: один потребительский вид,
// интерливящий item'ы нескольких источников.
type mergeDecl struct {
	name    string
	sources []string
}

// Graph — собранный и провалидированный граф задач.
//
// Рёбра выведены из привязок потоков, условные ветви с ложными
// предикатами отсечены целиком. Граф неизменяем после сборки.
type Graph struct {
	// Nodes — активные задачи (имя → узел).
	Nodes map[string]*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node

	// streams — все потоки графа (имя → поток), включая источники,
	// merged-потоки и пустые фолбэки Optional-привязок.
	streams map[string]*Stream

	// sources — имена внешних источников (производятся не задачами).
	sources map[string]bool

	merges []mergeDecl
}

// Stream возвращает поток по имени (nil, если не существует).
func (g *Graph) Stream(name string) *Stream {
	return g.streams[name]
}

// HasTask возвращает true, если задача присутствует в собранном графе.
// Отсечённые предикатами задачи отсутствуют.
func (g *Graph) HasTask(name string) bool {
	_, ok := g.Nodes[name]
	return ok
}

// Node возвращает узел по имени задачи.
func (g *Graph) Node(name string) *Node {
	return g.Nodes[name]
}

// Size возвращает количество активных задач.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// TaskNames возвращает отсортированные имена активных задач.
func (g *Graph) TaskNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSource возвращает true, если поток — внешний источник.
func (g *Graph) IsSource(name string) bool {
	return g.sources[name]
}

// Sources возвращает отсортированные имена внешних источников.
func (g *Graph) Sources() []string {
	names := make([]string, 0, len(g.sources))
	for name := range g.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartMerges запускает насосы merged-потоков.
// Вызывается оркестратором перед стартом выполнения.
func (g *Graph) StartMerges(ctx context.Context) {
	for _, m := range g.merges {
		dst := g.streams[m.name]
		srcs := make([]*Stream, 0, len(m.sources))
		for _, name := range m.sources {
			// Источник мог быть отсечён вместе с продюсером.
			if s := g.streams[name]; s != nil {
				srcs = append(srcs, s)
			}
		}
		MergeInto(ctx, dst, srcs...)
	}
}

// Builder собирает граф задач из объявлений.
//
// Продюсеры и потребители связываются только через имена потоков;
// отдельного списка смежности нет. Предикаты активации вычисляются
// ровно один раз — в Build.
type Builder struct {
	tasks   []*domain.TaskDef
	sources map[string]Kind
	merges  []mergeDecl
}

// NewBuilder создаёт пустой Builder.
func NewBuilder() *Builder {
	return &Builder{
		sources: make(map[string]Kind),
	}
}

// Source объявляет внешний источник: поток, наполняемый не задачей,
// а оркестратором (например, исходные файлы чтений).
func (b *Builder) Source(name string, kind Kind) {
	b.sources[name] = kind
}

// Register добавляет задачу в граф.
func (b *Builder) Register(task *domain.TaskDef) {
	b.tasks = append(b.tasks, task)
}

// MergeStreams объявляет fan-in поток name, интерливящий item'ы
// источников. Потребители name зависят от продюсеров всех источников.
func (b *Builder) MergeStreams(name string, sources ...string) {
	b.merges = append(b.merges, mergeDecl{name: name, sources: sources})
}

// Build собирает и валидирует граф.
//
// Порядок:
//  1. уникальность имён задач и single-writer потоков;
//  2. вычисление предикатов активации и транзитивное отсечение задач,
//     все входы которых производятся только отсечёнными задачами;
//  3. проверка привязок оставшихся задач: Optional-привязка к
//     отсечённому потоку получает пустой закрытый фолбэк, обязательная —
//     ErrUnsatisfiedDependency; привязка к необъявленному потоку —
//     ErrDanglingInput;
//  4. построение рёбер и топологическая сортировка (ErrCyclicGraph).
func (b *Builder) Build() (*Graph, error) {
	// Уникальность имён задач.
	byName := make(map[string]*domain.TaskDef, len(b.tasks))
	for _, task := range b.tasks {
		if _, exists := byName[task.Name]; exists {
			return nil, NewValidationError(task.Name, "",
				fmt.Sprintf("duplicate task name %q", task.Name), ErrDuplicateTask)
		}
		byName[task.Name] = task
	}

	// Продюсер каждого потока (включая пока не отсечённые задачи).
	producerOf := make(map[string]string)
	for _, task := range b.tasks {
		for _, out := range task.Outputs {
			if err := b.checkSingleWriter(producerOf, out.Stream, task.Name); err != nil {
				return nil, err
			}
			producerOf[out.Stream] = task.Name
		}
	}
	for name := range b.sources {
		if owner, exists := producerOf[name]; exists {
			return nil, NewValidationError(owner, name,
				fmt.Sprintf("stream %q declared both as source and as task output", name),
				ErrDuplicateProducer)
		}
	}
	for _, m := range b.merges {
		if owner, exists := producerOf[m.name]; exists {
			return nil, NewValidationError(owner, m.name,
				fmt.Sprintf("merged stream %q collides with task output", m.name),
				ErrDuplicateProducer)
		}
		if _, exists := b.sources[m.name]; exists {
			return nil, NewValidationError("", m.name,
				fmt.Sprintf("merged stream %q collides with source", m.name),
				ErrDuplicateProducer)
		}
	}

	active := b.pruneInactive(byName, producerOf)

	g := &Graph{
		Nodes:   make(map[string]*Node),
		streams: make(map[string]*Stream),
		sources: make(map[string]bool),
		merges:  b.merges,
	}

	// Потоки: источники, выходы активных задач, merged-потоки.
	for name, kind := range b.sources {
		g.streams[name] = NewStream(name, kind)
		g.sources[name] = true
	}
	for _, task := range b.tasks {
		if !active[task.Name] {
			continue
		}
		for _, out := range task.Outputs {
			kind := KindStreaming
			if out.Collecting {
				kind = KindCollecting
			}
			g.streams[out.Stream] = NewStream(out.Stream, kind)
		}
	}
	for _, m := range b.merges {
		g.streams[m.name] = NewStream(m.name, KindStreaming)
	}

	// Узлы.
	for _, task := range b.tasks {
		if !active[task.Name] {
			continue
		}
		node := &Node{Task: task}
		for _, out := range task.Outputs {
			node.OutStreams = append(node.OutStreams, g.streams[out.Stream])
		}
		g.Nodes[task.Name] = node
	}

	// Привязки и рёбра.
	for _, node := range g.Nodes {
		if err := b.bindInputs(g, node, byName, producerOf, active); err != nil {
			return nil, err
		}
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// checkSingleWriter проверяет инвариант single-writer для потока.
func (b *Builder) checkSingleWriter(producerOf map[string]string, stream, task string) error {
	if owner, exists := producerOf[stream]; exists {
		return NewValidationError(task, stream,
			fmt.Sprintf("stream %q already produced by task %q", stream, owner),
			ErrDuplicateProducer)
	}
	return nil
}

// pruneInactive вычисляет предикаты и транзитивно отсекает задачи,
// все входы которых производятся только отсечёнными задачами.
func (b *Builder) pruneInactive(byName map[string]*domain.TaskDef, producerOf map[string]string) map[string]bool {
	active := make(map[string]bool, len(b.tasks))
	for _, task := range b.tasks {
		active[task.Name] = task.When == nil || task.When()
	}

	streamActive := func(name string) bool {
		if _, ok := b.sources[name]; ok {
			return true
		}
		for _, m := range b.merges {
			if m.name == name {
				// merged-поток жив, пока жив хотя бы один источник
				for _, src := range m.sources {
					if _, ok := b.sources[src]; ok {
						return true
					}
					if producer, ok := producerOf[src]; ok && active[producer] {
						return true
					}
				}
				return false
			}
		}
		producer, ok := producerOf[name]
		return ok && active[producer]
	}

	// Фикспоинт: отсечение продюсера может осушить потребителей ниже.
	for changed := true; changed; {
		changed = false
		for _, task := range b.tasks {
			if !active[task.Name] || len(task.Inputs) == 0 {
				continue
			}
			alive := false
			for _, in := range task.Inputs {
				if streamActive(in.Stream) {
					alive = true
					break
				}
			}
			if !alive {
				active[task.Name] = false
				changed = true
			}
		}
	}

	return active
}

// bindInputs резолвит входные привязки узла в потоки и строит рёбра.
func (b *Builder) bindInputs(g *Graph, node *Node, byName map[string]*domain.TaskDef,
	producerOf map[string]string, active map[string]bool) error {

	task := node.Task
	for _, in := range task.Inputs {
		stream := g.streams[in.Stream]
		if stream != nil {
			node.InStreams = append(node.InStreams, stream)
			for _, producer := range b.producersOf(in.Stream, producerOf, active) {
				addEdge(g.Nodes[producer], node)
			}
			continue
		}

		// Потока нет в собранном графе: либо его продюсер отсечён,
		// либо поток вообще никем не объявлен.
		if producer, declared := producerOf[in.Stream]; declared && !active[producer] {
			if in.Optional {
				kind := KindStreaming
				if outKind := declaredKind(byName[producer], in.Stream); outKind != nil {
					kind = *outKind
				}
				fallback := NewClosedStream(in.Stream, kind)
				g.streams[in.Stream] = fallback
				node.InStreams = append(node.InStreams, fallback)
				continue
			}
			return NewValidationError(task.Name, in.Stream,
				fmt.Sprintf("input %q produced only by pruned task %q", in.Stream, producer),
				ErrUnsatisfiedDependency)
		}

		return NewValidationError(task.Name, in.Stream,
			fmt.Sprintf("input %q has no producer", in.Stream), ErrDanglingInput)
	}
	return nil
}

// producersOf возвращает активные задачи-продюсеры потока
// (для merged-потока — продюсеров всех живых источников).
func (b *Builder) producersOf(stream string, producerOf map[string]string, active map[string]bool) []string {
	for _, m := range b.merges {
		if m.name != stream {
			continue
		}
		var producers []string
		for _, src := range m.sources {
			if p, ok := producerOf[src]; ok && active[p] {
				producers = append(producers, p)
			}
		}
		return producers
	}
	if p, ok := producerOf[stream]; ok && active[p] {
		return []string{p}
	}
	return nil
}

// declaredKind возвращает вид потока из объявления продюсера.
func declaredKind(task *domain.TaskDef, stream string) *Kind {
	if task == nil {
		return nil
	}
	for _, out := range task.Outputs {
		if out.Stream == stream {
			k := KindStreaming
			if out.Collecting {
				k = KindCollecting
			}
			return &k
		}
	}
	return nil
}

// addEdge добавляет ребро между узлами с дедупликацией.
func addEdge(from, to *Node) {
	if from == nil || to == nil || from == to {
		return
	}
	for _, dep := range to.DependsOn {
		if dep == from {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет сортировку Кана.
// Возвращает ErrCyclicGraph, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	queue := make([]*Node, 0, len(g.Nodes))
	for name, node := range g.Nodes {
		inDegree[name] = node.InDegree
		if node.InDegree == 0 {
			queue = append(queue, node)
		}
	}
	// Детерминированный порядок обхода.
	sort.Slice(queue, func(i, j int) bool {
		return queue[i].Task.Name < queue[j].Task.Name
	})

	order := make([]*Node, 0, len(g.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.Task.Name]--
			if inDegree[dependent.Task.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicGraph
	}
	return order, nil
}

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/engine"
	"github.com/strelka-bio/strelka/internal/router"
	"github.com/strelka-bio/strelka/internal/telemetry"
	"github.com/strelka-bio/strelka/internal/worker"
)

// Default configuration values.
const (
	defaultWorkers = 4
	defaultTool    = "process"
)

// History — опциональная история запусков (реализуется пакетом repo).
// Ошибки персистентности логируются и никогда не валят run.
type History interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	FinishRun(ctx context.Context, run *domain.Run) error
	SaveTaskRun(ctx context.Context, tr *domain.TaskRun) error
}

// Events — опциональная шина событий run'а (реализуется пакетом mq).
type Events interface {
	PublishRunStarted(ctx context.Context, run *domain.Run) error
	PublishRunCompleted(ctx context.Context, run *domain.Run, failures []domain.TaskFailure) error
}

// Orchestrator выполняет граф задач одного run'а.
type Orchestrator struct {
	registry *worker.Registry
	router   *router.Router

	params   map[string]any
	workRoot string
	workers  int

	logger  *slog.Logger
	metrics *telemetry.Metrics
	history History
	events  Events
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Registry — реестр executor'ов (default: worker.NewRegistry()).
	Registry *worker.Registry

	// Router — маршрутизатор итоговой раскладки (обязателен).
	Router *router.Router

	// Params — параметры run'а для шаблонов команд.
	Params map[string]any

	// WorkRoot — корень рабочих каталогов выполнений.
	WorkRoot string

	// Workers — размер пула воркеров (default: 4).
	Workers int

	// Logger — логгер (default: slog.Default()).
	Logger *slog.Logger

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// History — история запусков (опционально).
	History History

	// Events — шина событий (опционально).
	Events Events
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	registry := cfg.Registry
	if registry == nil {
		registry = worker.NewRegistry()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		registry: registry,
		router:   cfg.Router,
		params:   cfg.Params,
		workRoot: cfg.WorkRoot,
		workers:  workers,
		logger:   logger,
		metrics:  cfg.Metrics,
		history:  cfg.History,
		events:   cfg.Events,
	}
}

// Execute выполняет граф до завершения всех достижимых задач.
//
// inputs — item'ы для потоков-источников графа (имя потока → item'ы).
// Источники, не упомянутые в inputs, закрываются пустыми.
//
// Возвращаемая ошибка — только фатальная (нарушение инварианта движка
// или невозможность стартовать); провал отдельных задач выражается
// статусом run'а и списком Failures в состоянии.
func (o *Orchestrator) Execute(ctx context.Context, run *domain.Run, g *engine.Graph,
	inputs map[string][]domain.Item) (*RunState, error) {

	total := 0
	for name, items := range inputs {
		if !g.IsSource(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		total += len(items)
	}
	if total == 0 {
		return nil, ErrNoInputs
	}

	state := NewRunState(run, g)
	logger := telemetry.WithRunID(o.logger, run.ID.String())

	run.MarkRunning()
	o.saveRun(ctx, run, logger)
	o.publishStarted(ctx, run, logger)

	logger.Info("run started",
		"tasks", g.Size(),
		"inputs", total,
		"workers", o.workers,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.StartMerges(runCtx)

	// Наполняем источники. Все item'ы известны заранее, поэтому
	// источники закрываются сразу после публикации.
	for _, name := range g.Sources() {
		stream := g.Stream(name)
		for _, item := range inputs[name] {
			if err := stream.Publish(item); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRunAborted, err)
			}
			o.countItem(name)
		}
		stream.Close()
	}

	// Драйвер на задачу; реальные выполнения идут через пул слотов.
	slots := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for _, node := range g.Order {
		wg.Add(1)
		go func(n *engine.Node) {
			defer wg.Done()
			o.runTask(runCtx, state, n, slots, cancel, logger)
		}(node)
	}
	wg.Wait()

	o.finalize(ctx, state, logger)

	if fatal := state.Fatal(); fatal != nil {
		return state, fmt.Errorf("%w: %v", ErrRunAborted, fatal)
	}
	return state, nil
}

// finalize вычисляет итоговый статус run'а и рассылает события.
func (o *Orchestrator) finalize(ctx context.Context, state *RunState, logger *slog.Logger) {
	run := state.Run()

	switch {
	case state.Fatal() != nil:
		run.MarkFailed(state.Fatal().Error())
	case state.HasRunFailure():
		run.MarkFailed("one or more tasks failed")
	default:
		run.MarkSucceeded()
	}

	stats := state.Stats()
	logger.Info("run finished",
		"status", run.Status,
		"duration", run.Duration().Round(time.Millisecond),
		"executions", stats.Total,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"cancelled", stats.Cancelled,
	)

	o.finishRun(ctx, run, logger)
	o.publishCompleted(ctx, run, state.Failures(), logger)
}

// runTask — драйвер одной задачи: ждёт входы, диспетчит выполнения,
// закрывает выходные потоки по завершении.
func (o *Orchestrator) runTask(ctx context.Context, state *RunState, node *engine.Node,
	slots chan struct{}, cancel context.CancelFunc, logger *slog.Logger) {

	task := node.Task
	logger = telemetry.WithTask(logger, task.Name)

	// Выходы закрываются всегда: потребители ниже по графу не должны
	// зависнуть, даже если задача не выполнилась ни разу.
	defer func() {
		for _, out := range node.OutStreams {
			out.Close()
		}
	}()

	// Broadcast-входы читаются первыми: их единственный item
	// спаривается с каждым item'ом streaming-входов.
	broadcast := make(map[string]string)
	var broadcastKey string
	for i, in := range task.Inputs {
		if in.Mode != domain.BindBroadcast {
			continue
		}
		item, ok, err := node.InStreams[i].Subscribe().Next(ctx)
		if err != nil {
			return // run отменён
		}
		if !ok {
			// Поток закрылся пустым: продюсер провалился или отсечён.
			o.recordCancelled(state, node)
			return
		}
		broadcast[in.Stream] = item.Path
		broadcastKey = item.SampleKey
	}

	executed := 0
	var execWG sync.WaitGroup
	dispatch := func(sampleKey string, paths map[string]string) {
		executed++
		tr := domain.NewTaskRun(state.Run().ID, task.Name, sampleKey)
		tr.Status = domain.TaskStatusReady
		state.AddInstance(tr)

		execWG.Add(1)
		go func() {
			defer execWG.Done()
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				tr.MarkCancelled()
				return
			}
			defer func() { <-slots }()
			o.execInstance(ctx, state, node, tr, paths, cancel, logger)
		}()
	}

	if task.IsCollecting() {
		o.driveCollecting(ctx, node, broadcast, dispatch)
	} else {
		o.driveStreaming(ctx, node, broadcast, broadcastKey, dispatch)
	}

	execWG.Wait()

	if executed == 0 {
		o.recordCancelled(state, node)
	}
}

// driveCollecting собирает полные пачки всех входов и диспетчит
// единственное выполнение.
func (o *Orchestrator) driveCollecting(ctx context.Context, node *engine.Node,
	broadcast map[string]string, dispatch func(string, map[string]string)) {

	task := node.Task
	paths := make(map[string]string, len(task.Inputs))
	for stream, p := range broadcast {
		paths[stream] = p
	}

	items := 0
	for i, in := range task.Inputs {
		if in.Mode == domain.BindBroadcast {
			continue
		}
		// Пачка собирается по виду потока: collecting-поток отдаёт её
		// сам, streaming-поток (например, источник) дочитывается до
		// закрытия и сортируется так же, как пачка collecting-потока.
		batch, err := drainAll(ctx, node.InStreams[i])
		if err != nil {
			return
		}
		items += len(batch)
		paths[in.Stream] = joinPaths(batch)
	}

	// Пустая пачка — выполнять нечего: либо ветвь выше провалилась
	// (recordCancelled сработает в драйвере), либо легальный no-op.
	if items == 0 {
		return
	}

	dispatch("", paths)
}

// driveStreaming диспетчит выполнение на каждый item (один streaming-вход)
// или на каждую пару item'ов с совпадающим ключом образца (несколько).
func (o *Orchestrator) driveStreaming(ctx context.Context, node *engine.Node,
	broadcast map[string]string, broadcastKey string, dispatch func(string, map[string]string)) {

	task := node.Task

	var streamIdx []int
	for i, in := range task.Inputs {
		if in.Mode == domain.BindStreaming {
			streamIdx = append(streamIdx, i)
		}
	}

	withBroadcast := func(extra map[string]string) map[string]string {
		paths := make(map[string]string, len(broadcast)+len(extra))
		for k, v := range broadcast {
			paths[k] = v
		}
		for k, v := range extra {
			paths[k] = v
		}
		return paths
	}

	switch len(streamIdx) {
	case 0:
		// Только broadcast-входы: одно выполнение на их комбинацию.
		dispatch(broadcastKey, withBroadcast(nil))

	case 1:
		i := streamIdx[0]
		sub := node.InStreams[i].Subscribe()
		for {
			item, ok, err := sub.Next(ctx)
			if err != nil || !ok {
				return
			}
			dispatch(item.SampleKey, withBroadcast(map[string]string{
				task.Inputs[i].Stream: item.Path,
			}))
		}

	default:
		// Спаривание по ключу образца между несколькими streaming-входами.
		type tagged struct {
			idx  int
			item domain.Item
		}
		ch := make(chan tagged)
		var pumps sync.WaitGroup
		for _, i := range streamIdx {
			pumps.Add(1)
			go func(i int) {
				defer pumps.Done()
				sub := node.InStreams[i].Subscribe()
				for {
					item, ok, err := sub.Next(ctx)
					if err != nil || !ok {
						return
					}
					select {
					case ch <- tagged{idx: i, item: item}:
					case <-ctx.Done():
						return
					}
				}
			}(i)
		}
		go func() {
			pumps.Wait()
			close(ch)
		}()

		pending := make(map[string]map[int]domain.Item)
		for tg := range ch {
			key := tg.item.SampleKey
			if pending[key] == nil {
				pending[key] = make(map[int]domain.Item)
			}
			pending[key][tg.idx] = tg.item

			if len(pending[key]) < len(streamIdx) {
				continue
			}
			extra := make(map[string]string, len(streamIdx))
			for idx, item := range pending[key] {
				extra[task.Inputs[idx].Stream] = item.Path
			}
			delete(pending, key)
			dispatch(key, withBroadcast(extra))
		}

		// Непарные item'ы: их образец провалился на одном из входов выше.
		for key := range pending {
			o.logger.Warn("unpaired item dropped", "task", task.Name, "sample", key)
		}
	}
}

// execInstance выполняет одно выполнение задачи и публикует артефакты.
func (o *Orchestrator) execInstance(ctx context.Context, state *RunState, node *engine.Node,
	tr *domain.TaskRun, inputs map[string]string, cancel context.CancelFunc, logger *slog.Logger) {

	task := node.Task
	if tr.SampleKey != "" {
		logger = logger.With("sample", tr.SampleKey)
	}

	workDir := filepath.Join(o.workRoot, task.Name, tr.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		o.failInstance(ctx, state, task, tr, fmt.Errorf("create workdir: %w", err), logger)
		return
	}

	argv, err := engine.RenderArgs(task.Command, &engine.Context{
		Inputs:    inputs,
		Params:    o.params,
		SampleKey: tr.SampleKey,
		OutDir:    o.router.OutDir(),
		WorkDir:   workDir,
	})
	if err != nil {
		o.failInstance(ctx, state, task, tr, err, logger)
		return
	}

	tool := task.Tool
	if tool == "" {
		tool = defaultTool
	}
	executor, err := o.registry.Get(tool)
	if err != nil {
		o.failInstance(ctx, state, task, tr, err, logger)
		return
	}

	tr.MarkRunning()
	if o.metrics != nil {
		o.metrics.TasksStarted.WithLabelValues(task.Name).Inc()
	}
	logger.Debug("execution started", "argv", argv)

	result, err := executor.Execute(ctx, &worker.Request{
		Task:           task.Name,
		Argv:           argv,
		WorkDir:        workDir,
		OutputPatterns: outputPatterns(task),
	})

	if o.metrics != nil && tr.StartedAt != nil {
		o.metrics.TaskDuration.WithLabelValues(task.Name).
			Observe(time.Since(*tr.StartedAt).Seconds())
	}

	if err != nil {
		if result != nil && len(result.Stderr) > 0 {
			logger.Debug("tool stderr", "stderr", string(result.Stderr))
		}
		o.failInstance(ctx, state, task, tr, err, logger)
		return
	}

	for _, artifact := range result.Artifacts {
		decl := matchOutput(task, filepath.Base(artifact))

		key, err := engine.ResolveSampleKey(artifact)
		if err != nil {
			o.failInstance(ctx, state, task, tr, err, logger)
			return
		}

		dest, err := o.router.Publish(task, artifact)
		if err != nil {
			o.failInstance(ctx, state, task, tr, err, logger)
			return
		}

		if decl == nil {
			// Артефакт опубликован в раскладку, но не адресован
			// ни одному выходному потоку (например, сырой лог).
			continue
		}

		item := domain.Item{SampleKey: key, Path: dest, Producer: task.Name}
		if err := streamFor(node, decl.Stream).Publish(item); err != nil {
			// Публикация в закрытый поток — нарушение инварианта
			// движка, фатальное для всего run'а.
			state.SetFatal(err)
			tr.MarkFailed(err.Error())
			logger.Error("engine invariant violated", "error", err)
			cancel()
			return
		}
		o.countItem(decl.Stream)
	}

	tr.MarkSucceeded()
	if o.metrics != nil {
		o.metrics.TasksSucceeded.WithLabelValues(task.Name).Inc()
	}
	o.saveTaskRun(ctx, tr, logger)
	logger.Info("execution succeeded",
		"duration", tr.Duration().Round(time.Millisecond),
		"artifacts", len(result.Artifacts),
	)
}

// failInstance фиксирует провал выполнения. Зависимые задачи отменяются
// через отсутствие item'ов и recordCancelled; независимые ветви
// продолжают выполняться.
func (o *Orchestrator) failInstance(ctx context.Context, state *RunState, task *domain.TaskDef,
	tr *domain.TaskRun, err error, logger *slog.Logger) {

	tr.MarkFailed(err.Error())
	state.RecordFailure(task, tr.SampleKey, err.Error())
	if o.metrics != nil {
		o.metrics.TasksFailed.WithLabelValues(task.Name).Inc()
	}
	o.saveTaskRun(ctx, tr, logger)
	logger.Error("execution failed", "error", err, "ignorable", task.Ignorable)
}

// recordCancelled помечает задачу отменённой, если она не выполнилась
// ни разу из-за не-ignorable провала выше по графу.
func (o *Orchestrator) recordCancelled(state *RunState, node *engine.Node) {
	if !state.UpstreamFailed(node) {
		return
	}
	tr := domain.NewTaskRun(state.Run().ID, node.Task.Name, "")
	tr.MarkCancelled()
	state.AddInstance(tr)
}

// countItem инкрементирует метрику публикаций в поток.
func (o *Orchestrator) countItem(stream string) {
	if o.metrics != nil {
		o.metrics.ItemsPublished.WithLabelValues(stream).Inc()
	}
}

// saveRun сохраняет run в историю (best effort).
func (o *Orchestrator) saveRun(ctx context.Context, run *domain.Run, logger *slog.Logger) {
	if o.history == nil {
		return
	}
	if err := o.history.SaveRun(ctx, run); err != nil {
		logger.Warn("failed to persist run", "error", err)
	}
}

// finishRun сохраняет финальный статус run'а в историю (best effort).
func (o *Orchestrator) finishRun(ctx context.Context, run *domain.Run, logger *slog.Logger) {
	if o.history == nil {
		return
	}
	if err := o.history.FinishRun(ctx, run); err != nil {
		logger.Warn("failed to persist run status", "error", err)
	}
}

// saveTaskRun сохраняет выполнение в историю (best effort).
func (o *Orchestrator) saveTaskRun(ctx context.Context, tr *domain.TaskRun, logger *slog.Logger) {
	if o.history == nil {
		return
	}
	if err := o.history.SaveTaskRun(ctx, tr); err != nil {
		logger.Warn("failed to persist task run", "error", err)
	}
}

// publishStarted публикует событие run.started (best effort).
func (o *Orchestrator) publishStarted(ctx context.Context, run *domain.Run, logger *slog.Logger) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishRunStarted(ctx, run); err != nil {
		logger.Warn("failed to publish run.started", "error", err)
	}
}

// publishCompleted публикует событие run.completed (best effort).
func (o *Orchestrator) publishCompleted(ctx context.Context, run *domain.Run,
	failures []domain.TaskFailure, logger *slog.Logger) {

	if o.events == nil {
		return
	}
	if err := o.events.PublishRunCompleted(ctx, run, failures); err != nil {
		logger.Warn("failed to publish run.completed", "error", err)
	}
}

// outputPatterns возвращает glob-шаблоны объявленных выходов задачи.
func outputPatterns(task *domain.TaskDef) []string {
	patterns := make([]string, 0, len(task.Outputs))
	for _, out := range task.Outputs {
		if out.Pattern != "" {
			patterns = append(patterns, out.Pattern)
		}
	}
	return patterns
}

// matchOutput находит объявление выхода, которому принадлежит артефакт.
func matchOutput(task *domain.TaskDef, name string) *domain.OutputDecl {
	for i := range task.Outputs {
		out := &task.Outputs[i]
		if out.Pattern == "" {
			continue
		}
		if ok, _ := filepath.Match(out.Pattern, name); ok {
			return out
		}
	}
	return nil
}

// streamFor возвращает выходной поток узла по имени.
func streamFor(node *engine.Node, stream string) *engine.Stream {
	for _, out := range node.OutStreams {
		if out.Name() == stream {
			return out
		}
	}
	return nil
}

// drainAll возвращает полное содержимое потока после его закрытия,
// отсортированное по ключу образца (при равных — по имени артефакта).
func drainAll(ctx context.Context, s *engine.Stream) ([]domain.Item, error) {
	if s.Kind() == engine.KindCollecting {
		return s.Subscribe().Batch(ctx)
	}

	sub := s.Subscribe()
	var batch []domain.Item
	for {
		item, ok, err := sub.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		batch = append(batch, item)
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].SampleKey != batch[j].SampleKey {
			return batch[i].SampleKey < batch[j].SampleKey
		}
		return batch[i].Name() < batch[j].Name()
	})
	return batch, nil
}

// joinPaths соединяет пути пачки пробелом для интерполяции в команду.
func joinPaths(items []domain.Item) string {
	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.Path)
	}
	return strings.Join(paths, " ")
}

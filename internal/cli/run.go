package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/strelka-bio/strelka/internal/config"
	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/mq"
	"github.com/strelka-bio/strelka/internal/orchestrator"
	"github.com/strelka-bio/strelka/internal/pipeline"
	"github.com/strelka-bio/strelka/internal/repo"
	"github.com/strelka-bio/strelka/internal/report"
	"github.com/strelka-bio/strelka/internal/router"
	"github.com/strelka-bio/strelka/internal/telemetry"
)

// NewRunCmd создаёт команду запуска пайплайна.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var (
		paramsFile string
		inputGlob  string
		outDir     string
		protocol   string
		contact    string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the small RNA pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(paramsFile, func(c *config.Config) {
				if inputGlob != "" {
					c.Input = inputGlob
				}
				if outDir != "" {
					c.OutDir = outDir
				}
				if protocol != "" {
					c.Protocol = protocol
				}
				if contact != "" {
					c.Contact = contact
				}
				if workers > 0 {
					c.Workers = workers
				}
			})
			if err != nil {
				return err
			}

			return executeRun(cmd.Context(), cfg, outputFn())
		},
	}

	cmd.Flags().StringVarP(&paramsFile, "params", "p", "", "YAML parameters file")
	cmd.Flags().StringVar(&inputGlob, "input", "", "Input FASTQ glob (overrides params file)")
	cmd.Flags().StringVar(&outDir, "outdir", "", "Output directory (overrides params file)")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Library protocol preset (illumina|qiaseq|nextflex|cathgen|custom)")
	cmd.Flags().StringVar(&contact, "contact", "", "Notification recipient")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size")

	return cmd
}

// loadConfig читает YAML-файл параметров, накладывает флаги и
// финализирует конфигурацию.
func loadConfig(paramsFile string, apply func(*config.Config)) (*config.Config, error) {
	cfg := &config.Config{}
	if paramsFile != "" {
		parsed, err := config.Parse(paramsFile)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}

	apply(cfg)

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// executeRun собирает граф, подключает опциональную инфраструктуру
// и выполняет run до завершения.
func executeRun(ctx context.Context, cfg *config.Config, out *Output) error {
	logger := slog.Default()

	g, err := pipeline.Build(cfg)
	if err != nil {
		return err
	}

	inputs, err := pipeline.DiscoverInputs(cfg)
	if err != nil {
		return err
	}

	// Опциональная история запусков: включается переменной DB_URL.
	var history orchestrator.History
	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(ctx)
		if err != nil {
			logger.Warn("database not available, run history disabled", "error", err)
		} else {
			defer pool.Close()
			history = repo.NewHistory(pool)
			logger.Info("database connected")
		}
	}

	// Опциональная шина событий и основной канал уведомлений:
	// включаются переменной AMQP_URL.
	var events orchestrator.Events
	var notifyPub report.Publisher
	if url := os.Getenv("AMQP_URL"); url != "" {
		conn, err := mq.NewConnection(url, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, events disabled", "error", err)
		} else {
			defer conn.Close()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			pub := mq.NewPublisher(conn, logger)
			events = pub
			notifyPub = pub
			logger.Info("RabbitMQ connected")
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	orch := orchestrator.New(orchestrator.Config{
		Router:   router.New(cfg.OutDir),
		Params:   cfg.Params(),
		WorkRoot: cfg.WorkDir,
		Workers:  cfg.Workers,
		Logger:   logger,
		Metrics:  metrics,
		History:  history,
		Events:   events,
	})

	run := domain.NewRun(pipeline.Name, cfg.Params())
	state, err := orch.Execute(ctx, run, g, inputs)
	if err != nil {
		return err
	}

	// Отчёт и уведомление: их ошибки логируются, статус run'а не меняют.
	agg := report.NewAggregator()
	agg.Addf("input files", "%d", len(inputs[pipeline.ReadsStream]))
	stats := state.Stats()
	agg.Addf("executions", "%d", stats.Total)
	agg.Addf("succeeded", "%d", stats.Succeeded)
	agg.Addf("failed", "%d", stats.Failed)
	agg.Addf("cancelled", "%d", stats.Cancelled)

	summary := agg.Build(state)
	if err := summary.Write(cfg.OutDir); err != nil {
		logger.Warn("failed to write report", "error", err)
	}
	report.NewNotifier(notifyPub, cfg.OutDir, logger).Notify(ctx, summary, cfg.Contact)

	printSummary(out, summary)

	if run.Status == domain.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
	}
	out.Success(fmt.Sprintf("Run succeeded: %s", run.ID))
	return nil
}

// printSummary выводит сводку по задачам run'а.
func printSummary(out *Output, s *report.Summary) {
	headers := []string{"TASK", "TOTAL", "OK", "FAILED", "CANCELLED"}
	rows := make([][]string, len(s.Tasks))
	for i, ts := range s.Tasks {
		rows[i] = []string{
			ts.Task,
			strconv.Itoa(ts.Total),
			strconv.Itoa(ts.Succeeded),
			strconv.Itoa(ts.Failed),
			strconv.Itoa(ts.Cancelled),
		}
	}
	out.Print(headers, rows, s)
}

// Strelka — оркестратор пайплайна секвенирования малых РНК.
//
// Использование:
//
//	strelka [--json] <command> [flags]
//
// Команды:
//
//	run    Выполнить пайплайн
//	graph  Показать граф задач для конфигурации
//	runs   Показать историю запусков из базы
//
// Окружение:
//
//	DB_URL        — история запусков в Postgres (опционально)
//	AMQP_URL      — события run'ов и уведомления через RabbitMQ (опционально)
//	LOG_LEVEL     — DEBUG | INFO | WARN | ERROR
//	LOG_FORMAT    — json | text
//	METRICS_ADDR  — адрес HTTP-листенера /metrics (опционально)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/strelka-bio/strelka/internal/cli"
	"github.com/strelka-bio/strelka/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	logger := telemetry.SetupLogger()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Метрики для долгих run'ов, включаются переменной METRICS_ADDR.
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		go func() {
			logger.Info("metrics listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "strelka",
		Short:         "Strelka — small RNA pipeline orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn),
		cli.NewGraphCmd(outputFn),
		cli.NewRunsCmd(outputFn),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

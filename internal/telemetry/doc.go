// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Приложение использует единый формат логирования и экспортирует
// метрики на /metrics endpoint (переменная METRICS_ADDR).
package telemetry

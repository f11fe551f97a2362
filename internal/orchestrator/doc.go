// Package orchestrator выполняет собранный граф задач.
//
// Оркестратор:
//   - Наполняет потоки-источники входными item'ами
//   - Для каждой задачи ждёт доставки её входов (по-итемно для
//     streaming-задач, полной пачкой для collecting-задач)
//   - Запускает выполнения через ограниченный пул воркеров
//   - Публикует выходные артефакты в объявленные потоки и итоговую
//     раскладку результатов
//   - Распространяет провалы по рёбрам зависимостей, не трогая
//     независимые ветви
//   - Финализирует run (SUCCEEDED/FAILED) и отдаёт состояние отчёту
package orchestrator

// Package engine содержит ядро оркестрации пайплайна.
//
// Включает:
//   - samplekey.go — вывод стабильного ключа образца из имени файла
//   - stream.go    — потоки данных: fan-out, fan-in (merge), collecting
//   - graph.go     — построение графа задач из привязок потоков
//   - template.go  — рендеринг argv внешних команд ({{ .Inputs.x }})
//
// Engine отвечает за топологию: кто что производит, кто что потребляет
// и в каком порядке задачи могут выполняться. Сам запуск внешних
// инструментов живёт в пакетах orchestrator и worker.
package engine

package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Context — контекст рендеринга шаблонов команд.
//
// Доступен в Go templates:
//   - {{ .Inputs.reads }}   — путь(и) привязанного входа
//   - {{ .Params.adapter }} — параметр run'а
//   - {{ .SampleKey }}      — ключ образца текущего item'а
//   - {{ .OutDir }}         — итоговый каталог run'а
//   - {{ .WorkDir }}        — рабочий каталог выполнения
type Context struct {
	// Inputs — пути входных артефактов по имени потока.
	// Для collecting-входов пути пачки соединены пробелом.
	Inputs map[string]string

	// Params — параметры run'а (из конфигурации).
	Params map[string]any

	// SampleKey — ключ образца (пустой для collecting-задач).
	SampleKey string

	// OutDir — итоговый каталог run'а.
	OutDir string

	// WorkDir — рабочий каталог текущего выполнения.
	WorkDir string
}

// templateFuncs — дополнительные функции для шаблонов команд.
var templateFuncs = template.FuncMap{
	// default — значение по умолчанию, если аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// contains — проверяет, содержит ли строка подстроку
	"contains": strings.Contains,

	// hasSuffix — проверяет суффикс строки
	"hasSuffix": strings.HasSuffix,

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// Render рендерит один строковый шаблон с контекстом.
func Render(tmpl string, ctx *Context) (string, error) {
	// Быстрый путь для литералов без шаблонных выражений.
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderArgs рендерит argv внешней команды.
func RenderArgs(argv []string, ctx *Context) ([]string, error) {
	rendered := make([]string, len(argv))
	for i, arg := range argv {
		out, err := Render(arg, ctx)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		rendered[i] = out
	}
	return rendered, nil
}

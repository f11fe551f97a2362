// Package config загружает и валидирует конфигурацию run'а:
// YAML-файл параметров, перекрытый флагами CLI и окружением.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration — конфигурация невалидна; run прерывается до сборки
// графа.
var ErrConfiguration = errors.New("invalid configuration")

// Protocol — преднастройка протокола подготовки библиотеки:
// адаптер и параметры обрезки.
type Protocol struct {
	// Adapter — последовательность 3'-адаптера.
	Adapter string

	// ClipR1 — число оснований, отрезаемых с 5'-конца.
	ClipR1 int

	// ThreePrimeClipR1 — число оснований, отрезаемых с 3'-конца
	// после удаления адаптера.
	ThreePrimeClipR1 int
}

// protocols — известные преднастройки. Ключ "custom" требует явного
// адаптера в конфигурации.
var protocols = map[string]Protocol{
	"illumina": {Adapter: "TGGAATTCTCGGGTGCCAAGG"},
	"nextflex": {Adapter: "TGGAATTCTCGGGTGCCAAGG", ClipR1: 4, ThreePrimeClipR1: 4},
	"qiaseq":   {Adapter: "AACTGTAGGCACCATCAAT"},
	"cathgen":  {Adapter: "AACTGTAGGCACCATCAAT", ClipR1: 3, ThreePrimeClipR1: 3},
}

// Config — конфигурация одного run'а пайплайна.
type Config struct {
	// Input — glob входных FASTQ-файлов.
	Input string `yaml:"input"`

	// OutDir — каталог результатов run'а.
	OutDir string `yaml:"outdir"`

	// WorkDir — корень рабочих каталогов выполнений.
	// По умолчанию — <outdir>/work.
	WorkDir string `yaml:"workdir"`

	// Protocol — имя преднастройки протокола
	// (illumina | qiaseq | nextflex | cathgen | custom).
	Protocol string `yaml:"protocol"`

	// Adapter — последовательность адаптера; перекрывает преднастройку,
	// обязательна при protocol: custom.
	Adapter string `yaml:"adapter"`

	// ClipR1 и ThreePrimeClipR1 перекрывают преднастройку, если заданы.
	ClipR1           int `yaml:"clip_r1"`
	ThreePrimeClipR1 int `yaml:"three_prime_clip_r1"`

	// Mature и Hairpin — FASTA референсов зрелых микроРНК и шпилек.
	// Обязательны: ядро пайплайна выравнивает на оба.
	Mature  string `yaml:"mature"`
	Hairpin string `yaml:"hairpin"`

	// Genome — идентификатор генома хозяина (для отчёта).
	Genome string `yaml:"genome"`

	// GTF и BowtieIndex включают геномную ветвь пайплайна.
	// Задаются либо оба, либо ни один.
	GTF         string `yaml:"gtf"`
	BowtieIndex string `yaml:"bowtie_index"`

	// MirtraceSpecies включает стадию mirtrace QC.
	MirtraceSpecies string `yaml:"mirtrace_species"`

	// Contact — получатель уведомления о завершении run'а.
	Contact string `yaml:"contact"`

	// Workers — размер пула воркеров.
	Workers int `yaml:"workers"`

	// Ignorable — имена задач, провал которых не валит run.
	Ignorable []string `yaml:"ignorable"`
}

// Load читает конфигурацию из YAML-файла и валидирует её.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse читает YAML-файл без финализации. Используется CLI: поверх
// распарсенной конфигурации накладываются флаги, затем Finalize.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}
	return &cfg, nil
}

// Finalize применяет преднастройку протокола, значения по умолчанию
// и валидирует результат. Вызывается после наложения флагов CLI.
func (c *Config) Finalize() error {
	if c.Protocol == "" {
		c.Protocol = "illumina"
	}

	if c.Protocol != "custom" {
		preset, ok := protocols[c.Protocol]
		if !ok {
			return fmt.Errorf("%w: unknown protocol %q", ErrConfiguration, c.Protocol)
		}
		if c.Adapter == "" {
			c.Adapter = preset.Adapter
		}
		if c.ClipR1 == 0 {
			c.ClipR1 = preset.ClipR1
		}
		if c.ThreePrimeClipR1 == 0 {
			c.ThreePrimeClipR1 = preset.ThreePrimeClipR1
		}
	}

	if c.WorkDir == "" && c.OutDir != "" {
		c.WorkDir = filepath.Join(c.OutDir, "work")
	}

	return c.validate()
}

// validate проверяет обязательные поля.
func (c *Config) validate() error {
	if c.Input == "" {
		return fmt.Errorf("%w: input glob is required", ErrConfiguration)
	}
	if c.OutDir == "" {
		return fmt.Errorf("%w: outdir is required", ErrConfiguration)
	}
	if c.Protocol == "custom" && c.Adapter == "" {
		return fmt.Errorf("%w: protocol custom requires an explicit adapter", ErrConfiguration)
	}
	if c.Mature == "" || c.Hairpin == "" {
		return fmt.Errorf("%w: mature and hairpin reference FASTA are required", ErrConfiguration)
	}
	if (c.GTF == "") != (c.BowtieIndex == "") {
		return fmt.Errorf("%w: gtf and bowtie_index must be set together", ErrConfiguration)
	}
	return nil
}

// HasGenome возвращает true, если геномная ветвь пайплайна включена.
func (c *Config) HasGenome() bool {
	return c.GTF != "" && c.BowtieIndex != ""
}

// HasMirtrace возвращает true, если стадия mirtrace включена.
func (c *Config) HasMirtrace() bool {
	return c.MirtraceSpecies != ""
}

// IsIgnorable возвращает true, если провал задачи не должен валить run.
func (c *Config) IsIgnorable(task string) bool {
	for _, name := range c.Ignorable {
		if name == task {
			return true
		}
	}
	return false
}

// Params возвращает параметры run'а для шаблонов команд и отчёта.
func (c *Config) Params() map[string]any {
	params := map[string]any{
		"protocol":            c.Protocol,
		"adapter":             c.Adapter,
		"clip_r1":             c.ClipR1,
		"three_prime_clip_r1": c.ThreePrimeClipR1,
		"mature":              c.Mature,
		"hairpin":             c.Hairpin,
	}
	if c.Genome != "" {
		params["genome"] = c.Genome
	}
	if c.HasGenome() {
		params["gtf"] = c.GTF
		params["bowtie_index"] = c.BowtieIndex
	}
	if c.HasMirtrace() {
		params["mirtrace_species"] = c.MirtraceSpecies
	}
	return params
}

// Package pipeline определяет граф задач пайплайна малых РНК:
// QC и обрезка чтений, выравнивание на зрелые микроРНК и шпильки,
// опциональная геномная ветвь, агрегация счётчиков и сводный отчёт.
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/strelka-bio/strelka/internal/config"
	"github.com/strelka-bio/strelka/internal/domain"
	"github.com/strelka-bio/strelka/internal/engine"
)

// Name — имя пайплайна в отчёте и истории запусков.
const Name = "smallrna"

// ReadsStream — поток-источник входных FASTQ.
const ReadsStream = "reads"

// ignorableByDefault — QC-стадии, провал которых по умолчанию не валит
// run. Конфигурация может расширить список, но не сузить.
var ignorableByDefault = map[string]bool{
	"fastqc":               true,
	"mirtrace":             true,
	"readlength_stats":     true,
	"genome_coverage_plot": true,
	"multiqc":              true,
}

// Build собирает граф пайплайна для конфигурации cfg.
//
// Условные ветви (mirtrace, геномная) включаются предикатами по
// референсным входам; выключенная ветвь отсутствует в графе целиком.
func Build(cfg *config.Config) (*engine.Graph, error) {
	b := engine.NewBuilder()
	b.Source(ReadsStream, engine.KindStreaming)

	ignorable := func(task string) bool {
		return ignorableByDefault[task] || cfg.IsIgnorable(task)
	}

	b.Register(&domain.TaskDef{
		Name: "fastqc",
		Inputs: []domain.InputBinding{
			{Stream: ReadsStream, Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "fastqc_reports", Collecting: true, Pattern: "*_fastqc.zip"},
		},
		Command: []string{
			"fastqc", "--outdir", "{{ .WorkDir }}", "{{ .Inputs.reads }}",
		},
		Ignorable: ignorable("fastqc"),
		Route:     &domain.RouteSpec{Subdir: "fastqc"},
	})

	b.Register(&domain.TaskDef{
		Name: "trimgalore",
		Inputs: []domain.InputBinding{
			{Stream: ReadsStream, Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "trimmed", Pattern: "*_trimmed.fq.gz"},
		},
		Command: []string{
			"trim_galore",
			"--adapter", "{{ .Params.adapter }}",
			"--clip_r1", "{{ .Params.clip_r1 }}",
			"--three_prime_clip_r1", "{{ .Params.three_prime_clip_r1 }}",
			"--gzip",
			"--output_dir", "{{ .WorkDir }}",
			"{{ .Inputs.reads }}",
		},
		Ignorable: ignorable("trimgalore"),
		Route:     &domain.RouteSpec{Subdir: "trimmed"},
	})

	b.Register(&domain.TaskDef{
		Name: "mirtrace",
		Inputs: []domain.InputBinding{
			{Stream: ReadsStream, Mode: domain.BindCollecting},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "mirtrace_report", Collecting: true, Pattern: "mirtrace-report*"},
		},
		Command: []string{
			"mirtrace", "qc",
			"--species", "{{ .Params.mirtrace_species }}",
			"--output-dir", "{{ .WorkDir }}",
			"{{ .Inputs.reads }}",
		},
		When:      cfg.HasMirtrace,
		Ignorable: ignorable("mirtrace"),
		Route:     &domain.RouteSpec{Subdir: "mirtrace"},
	})

	// Индексы референсов: один item на весь run, broadcast-потоки.
	b.Register(&domain.TaskDef{
		Name: "index_mature",
		Outputs: []domain.OutputDecl{
			{Stream: "mature_index", Pattern: "mature_index.1.ebwt"},
		},
		Command: []string{
			"bowtie-build", "{{ .Params.mature }}", "{{ .WorkDir }}/mature_index",
		},
		Route: &domain.RouteSpec{Subdir: "indexes"},
	})
	b.Register(&domain.TaskDef{
		Name: "index_hairpin",
		Outputs: []domain.OutputDecl{
			{Stream: "hairpin_index", Pattern: "hairpin_index.1.ebwt"},
		},
		Command: []string{
			"bowtie-build", "{{ .Params.hairpin }}", "{{ .WorkDir }}/hairpin_index",
		},
		Route: &domain.RouteSpec{Subdir: "indexes"},
	})

	// Цепочка выравниваний: на зрелые микроРНК, невыровненное — на
	// шпильки. Порядок цепочки задаётся здесь, а не движком.
	b.Register(&domain.TaskDef{
		Name: "align_mature",
		Inputs: []domain.InputBinding{
			{Stream: "trimmed", Mode: domain.BindStreaming},
			{Stream: "mature_index", Mode: domain.BindBroadcast},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "mature_bam", Pattern: "*_mature.bam"},
			{Stream: "mature_unmapped", Pattern: "*_unmapped.fq.gz"},
		},
		Command: []string{
			"bowtie",
			"-x", "{{ replace .Inputs.mature_index \".1.ebwt\" \"\" }}",
			"--un", "{{ .WorkDir }}/{{ .SampleKey }}_unmapped.fq.gz",
			"-S", "{{ .WorkDir }}/{{ .SampleKey }}_mature.bam",
			"{{ .Inputs.trimmed }}",
		},
		Route: &domain.RouteSpec{Subdir: "aligned"},
	})
	b.Register(&domain.TaskDef{
		Name: "align_hairpin",
		Inputs: []domain.InputBinding{
			{Stream: "mature_unmapped", Mode: domain.BindStreaming},
			{Stream: "hairpin_index", Mode: domain.BindBroadcast},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "hairpin_bam", Pattern: "*_hairpin.bam"},
		},
		Command: []string{
			"bowtie",
			"-x", "{{ replace .Inputs.hairpin_index \".1.ebwt\" \"\" }}",
			"-S", "{{ .WorkDir }}/{{ .SampleKey }}_hairpin.bam",
			"{{ .Inputs.mature_unmapped }}",
		},
		Route: &domain.RouteSpec{Subdir: "aligned"},
	})

	// Оба BAM-потока сливаются и обрабатываются одной стадией;
	// раскладка результата — по классификатору mature/hairpin.
	b.MergeStreams("aligned_bam", "mature_bam", "hairpin_bam")
	b.Register(&domain.TaskDef{
		Name: "sam_post",
		Inputs: []domain.InputBinding{
			{Stream: "aligned_bam", Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "sorted_bam", Pattern: "*.bam"},
			{Stream: "aln_stats", Collecting: true, Pattern: "*.stats"},
		},
		Command: []string{
			"samtools-post", "{{ .Inputs.aligned_bam }}", "{{ .WorkDir }}",
		},
		Route: &domain.RouteSpec{
			Rules: []domain.RouteRule{
				{Marker: "mature", Subdir: "miRBase_mature"},
				{Marker: "hairpin", Subdir: "miRBase_hairpin"},
			},
		},
	})

	b.Register(&domain.TaskDef{
		Name: "summarize_counts",
		Inputs: []domain.InputBinding{
			{Stream: "aln_stats", Mode: domain.BindCollecting},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "counts", Pattern: "mirna_counts.csv"},
		},
		Command: []string{
			"summarize-counts", "-o", "{{ .WorkDir }}/mirna_counts.csv",
			"{{ .Inputs.aln_stats }}",
		},
		Route: &domain.RouteSpec{Subdir: "summary"},
	})

	b.Register(&domain.TaskDef{
		Name: "readlength_stats",
		Inputs: []domain.InputBinding{
			{Stream: "trimmed", Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "readlength", Collecting: true, Pattern: "*_readlength.txt"},
		},
		Command: []string{
			"readlength-stats", "{{ .Inputs.trimmed }}",
			"-o", "{{ .WorkDir }}/{{ .SampleKey }}_readlength.txt",
		},
		Ignorable: ignorable("readlength_stats"),
		Route:     &domain.RouteSpec{Subdir: "readlength"},
	})

	// Геномная ветвь: активна только при заданных gtf + bowtie_index.
	b.Register(&domain.TaskDef{
		Name: "align_genome",
		Inputs: []domain.InputBinding{
			{Stream: "trimmed", Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "genome_bam", Pattern: "*_genome.bam"},
			{Stream: "genome_unmapped", Pattern: "*_genome_unmapped.fq.gz"},
		},
		Command: []string{
			"bowtie",
			"-x", "{{ .Params.bowtie_index }}",
			"--un", "{{ .WorkDir }}/{{ .SampleKey }}_genome_unmapped.fq.gz",
			"-S", "{{ .WorkDir }}/{{ .SampleKey }}_genome.bam",
			"{{ .Inputs.trimmed }}",
		},
		When:  cfg.HasGenome,
		Route: &domain.RouteSpec{Subdir: "genome"},
	})
	b.Register(&domain.TaskDef{
		Name: "genome_unmapped_stats",
		Inputs: []domain.InputBinding{
			{Stream: "genome_unmapped", Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "genome_stats", Collecting: true, Pattern: "*_genome.stats"},
		},
		Command: []string{
			"unmapped-stats", "{{ .Inputs.genome_unmapped }}",
			"-o", "{{ .WorkDir }}/{{ .SampleKey }}_genome.stats",
		},
		When:  cfg.HasGenome,
		Route: &domain.RouteSpec{Subdir: "genome"},
	})
	b.Register(&domain.TaskDef{
		Name: "genome_coverage_plot",
		Inputs: []domain.InputBinding{
			{Stream: "genome_bam", Mode: domain.BindStreaming},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "coverage", Pattern: "*_coverage.pdf"},
		},
		Command: []string{
			"coverage-plot", "--gtf", "{{ .Params.gtf }}",
			"-o", "{{ .WorkDir }}/{{ .SampleKey }}_coverage.pdf",
			"{{ .Inputs.genome_bam }}",
		},
		When:      cfg.HasGenome,
		Ignorable: ignorable("genome_coverage_plot"),
		Route:     &domain.RouteSpec{Subdir: "genome"},
	})

	// Финальный агрегатор: собирает все QC-отчёты, какие есть.
	// Привязки условных ветвей — Optional: при выключенной ветви
	// multiqc получает пустой закрытый поток, а не ошибку сборки.
	b.Register(&domain.TaskDef{
		Name: "multiqc",
		Inputs: []domain.InputBinding{
			{Stream: "fastqc_reports", Mode: domain.BindCollecting},
			{Stream: "aln_stats", Mode: domain.BindCollecting},
			{Stream: "readlength", Mode: domain.BindCollecting},
			{Stream: "mirtrace_report", Mode: domain.BindCollecting, Optional: true},
			{Stream: "genome_stats", Mode: domain.BindCollecting, Optional: true},
		},
		Outputs: []domain.OutputDecl{
			{Stream: "multiqc_report", Pattern: "multiqc_report.html"},
		},
		Command: []string{
			"multiqc", "--outdir", "{{ .WorkDir }}", "{{ .OutDir }}",
		},
		Ignorable: ignorable("multiqc"),
		Route:     &domain.RouteSpec{Subdir: "multiqc"},
	})

	return b.Build()
}

// DiscoverInputs находит входные FASTQ по glob'у конфигурации и
// резолвит ключ образца каждого файла.
func DiscoverInputs(cfg *config.Config) (map[string][]domain.Item, error) {
	paths, err := filepath.Glob(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: bad input glob %q", config.ErrConfiguration, cfg.Input)
	}

	items := make([]domain.Item, 0, len(paths))
	for _, path := range paths {
		key, err := engine.ResolveSampleKey(path)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", path, err)
		}
		items = append(items, domain.Item{SampleKey: key, Path: path})
	}
	return map[string][]domain.Item{ReadsStream: items}, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
input: "/data/*.fastq.gz"
outdir: /results/run1
mature: /refs/mature.fa
hairpin: /refs/hairpin.fa
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Протокол по умолчанию — illumina с его адаптером.
	if cfg.Protocol != "illumina" {
		t.Errorf("protocol = %q, want illumina", cfg.Protocol)
	}
	if cfg.Adapter != "TGGAATTCTCGGGTGCCAAGG" {
		t.Errorf("adapter = %q, want illumina preset", cfg.Adapter)
	}
	// WorkDir по умолчанию — под outdir.
	if cfg.WorkDir != filepath.Join("/results/run1", "work") {
		t.Errorf("workdir = %q, want outdir/work", cfg.WorkDir)
	}
	if cfg.HasGenome() || cfg.HasMirtrace() {
		t.Errorf("optional branches enabled without references")
	}
}

func TestLoadProtocolPresets(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig+"protocol: nextflex\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ClipR1 != 4 || cfg.ThreePrimeClipR1 != 4 {
		t.Errorf("nextflex clip = %d/%d, want 4/4", cfg.ClipR1, cfg.ThreePrimeClipR1)
	}

	// Явный адаптер перекрывает преднастройку.
	cfg, err = Load(writeConfig(t, validConfig+"protocol: qiaseq\nadapter: ACGT\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Adapter != "ACGT" {
		t.Errorf("adapter = %q, want explicit ACGT", cfg.Adapter)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown protocol", validConfig + "protocol: smartseq\n"},
		{"custom without adapter", validConfig + "protocol: custom\n"},
		{"missing input", "outdir: /r\nmature: /m.fa\nhairpin: /h.fa\n"},
		{"missing outdir", "input: \"*.fastq\"\nmature: /m.fa\nhairpin: /h.fa\n"},
		{"missing references", "input: \"*.fastq\"\noutdir: /r\n"},
		{"gtf without index", validConfig + "gtf: /refs/genes.gtf\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Load() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestHasGenome(t *testing.T) {
	body := validConfig + "gtf: /refs/genes.gtf\nbowtie_index: /refs/genome\ngenome: GRCh38\n"
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.HasGenome() {
		t.Errorf("HasGenome() = false, want true")
	}

	params := cfg.Params()
	if params["gtf"] != "/refs/genes.gtf" || params["genome"] != "GRCh38" {
		t.Errorf("params = %v, want genome references present", params)
	}
}

func TestIsIgnorable(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig+"ignorable: [fastqc, mirtrace]\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.IsIgnorable("fastqc") {
		t.Errorf("IsIgnorable(fastqc) = false, want true")
	}
	if cfg.IsIgnorable("trimgalore") {
		t.Errorf("IsIgnorable(trimgalore) = true, want false")
	}
}

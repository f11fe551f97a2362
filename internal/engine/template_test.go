package engine

import (
	"errors"
	"testing"
)

func TestRenderArgs(t *testing.T) {
	ctx := &Context{
		Inputs:    map[string]string{"reads": "/work/sample1_R1.fastq.gz"},
		Params:    map[string]any{"adapter": "TGGAATTCTCGGGTGCCAAGG"},
		SampleKey: "sample1",
		OutDir:    "/results",
	}

	argv, err := RenderArgs([]string{
		"trim_galore",
		"--adapter", "{{ .Params.adapter }}",
		"--basename", "{{ .SampleKey }}",
		"{{ .Inputs.reads }}",
	}, ctx)
	if err != nil {
		t.Fatalf("RenderArgs: %v", err)
	}

	want := []string{
		"trim_galore",
		"--adapter", "TGGAATTCTCGGGTGCCAAGG",
		"--basename", "sample1",
		"/work/sample1_R1.fastq.gz",
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestRender_Literal(t *testing.T) {
	got, err := Render("--quiet", &Context{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "--quiet" {
		t.Errorf("literal changed: %q", got)
	}
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .Inputs.reads", &Context{})
	if !errors.Is(err, ErrTemplateParse) {
		t.Fatalf("expected ErrTemplateParse, got %v", err)
	}
}

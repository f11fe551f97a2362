package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	var out, errOut bytes.Buffer
	o := &Output{w: &out, errW: &errOut}

	o.Table([]string{"TASK", "STATUS"}, [][]string{
		{"trimgalore", "SUCCEEDED"},
		{"align_mature", "FAILED"},
	})

	if !strings.Contains(out.String(), "align_mature") {
		t.Errorf("table output missing row: %q", out.String())
	}
	// Счётчик уходит в stderr, stdout остаётся чистыми данными.
	if strings.Contains(out.String(), "total:") {
		t.Errorf("row counter leaked into stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "(total: 2)") {
		t.Errorf("expected row counter in stderr, got %q", errOut.String())
	}
}

func TestTable_Empty(t *testing.T) {
	var out, errOut bytes.Buffer
	o := &Output{w: &out, errW: &errOut}

	o.Table([]string{"ID"}, nil)

	if out.Len() != 0 {
		t.Errorf("empty table must not write to stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "No results.") {
		t.Errorf("expected empty-result message, got %q", errOut.String())
	}
}

func TestPrint_JSONMode(t *testing.T) {
	var out, errOut bytes.Buffer
	o := &Output{jsonMode: true, w: &out, errW: &errOut}

	o.Print([]string{"ID"}, [][]string{{"x"}}, map[string]string{"id": "x"})

	if !strings.Contains(out.String(), `"id": "x"`) {
		t.Errorf("json output = %q", out.String())
	}
}

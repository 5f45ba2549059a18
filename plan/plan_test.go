package plan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/pdfpages/pagemanip"
	"github.com/hazyhaar/pdfpages/pagemanip/pagetest"
)

func TestLoadAndRun(t *testing.T) {
	dir := t.TempDir()
	pagetest.WriteDoc(t, dir, "scan.pdf", 6)
	path := pagetest.WriteFile(t, filepath.Join(dir, "plan.yaml"), `
source: scan.pdf
output: clean.pdf
split: true
operations:
  - op: remove_first_page
  - op: insert_blank
    position: 2
  - op: extract_range
    start: 0
    end: 3
`)

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Operations) != 3 || p.Operations[1].Position == nil || *p.Operations[1].Position != 2 {
		t.Fatalf("parsed: %+v", p.Operations)
	}

	res, err := p.Run(context.Background(), pagetest.Codec{}, pagemanip.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != filepath.Join(dir, "clean.pdf") {
		t.Fatalf("output: %s", res.Output)
	}
	// [1..6] -> [2..6] -> [2,3,0,4,5,6] -> [2,3,0,4]
	if got := pagetest.ReadOut(t, res.Output); got != "2,3,0,4" {
		t.Fatalf("output pages: %s", got)
	}
	if pagetest.ReadOut(t, res.Even) != "2,0" || pagetest.ReadOut(t, res.Odd) != "3,4" {
		t.Fatalf("split: %s / %s", pagetest.ReadOut(t, res.Even), pagetest.ReadOut(t, res.Odd))
	}
	if res.Even != filepath.Join(dir, "scan_even.pdf") {
		t.Fatalf("even path: %s", res.Even)
	}
	if res.State.LastOperation != pagemanip.OpExtractEvenOddSave {
		t.Fatalf("last op: %q", res.State.LastOperation)
	}
}

func TestRun_DefaultOutput(t *testing.T) {
	dir := t.TempDir()
	pagetest.WriteDoc(t, dir, "a.pdf", 2)
	p, err := Load(pagetest.WriteFile(t, filepath.Join(dir, "p.yaml"), "source: a.pdf\noperations:\n  - op: insert_last\n"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(context.Background(), pagetest.Codec{}, pagemanip.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != filepath.Join(dir, "a_out.pdf") || pagetest.ReadOut(t, res.Output) != "1,2,0" {
		t.Fatalf("result: %+v", res)
	}
	if res.Even != "" {
		t.Fatal("no split requested")
	}
}

func TestRun_StopsAtFailure(t *testing.T) {
	dir := t.TempDir()
	pagetest.WriteDoc(t, dir, "a.pdf", 3)
	p, err := Load(pagetest.WriteFile(t, filepath.Join(dir, "p.yaml"), `
source: a.pdf
operations:
  - op: remove_last_page
  - op: extract_range
    start: 0
    end: 5
  - op: insert_first
`))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(context.Background(), pagetest.Codec{}, pagemanip.Config{})
	if !errors.Is(err, pagemanip.ErrIndexOutOfRange) {
		t.Fatalf("got %v, want ErrIndexOutOfRange", err)
	}
	if res.State.PageCount != 2 || res.State.LastOperation != pagemanip.OpRemoveLast {
		t.Fatalf("state: %+v", res.State)
	}
	if res.Output != "" {
		t.Fatal("nothing must be written")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want error
	}{
		{"no source", "operations: []\n", pagemanip.ErrValidation},
		{"unknown op", "source: a.pdf\noperations:\n  - op: rotate\n", pagemanip.ErrUnknownAction},
		{"missing position", "source: a.pdf\noperations:\n  - op: insert_blank\n", pagemanip.ErrValidation},
		{"output with no_save", "source: a.pdf\noutput: b.pdf\nno_save: true\n", pagemanip.ErrValidation},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.yaml)); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}

	// Every bad step is reported, not only the first.
	_, err := Parse([]byte("source: a.pdf\noperations:\n  - op: rotate\n  - op: extract_range\n    start: 1\n"))
	if !errors.Is(err, pagemanip.ErrUnknownAction) || !errors.Is(err, pagemanip.ErrValidation) {
		t.Fatalf("joined errors: %v", err)
	}
}

func TestParse_Indices(t *testing.T) {
	p, err := Parse([]byte("source: /x/a.pdf\noperations:\n  - op: extract_pages\n    indices: [3, 0, 3]\n"))
	if err != nil {
		t.Fatal(err)
	}
	ops, err := p.Ops()
	if err != nil {
		t.Fatal(err)
	}
	ep, ok := ops[0].(pagemanip.ExtractPages)
	if !ok || len(ep.Indices) != 3 || ep.Indices[0] != 3 {
		t.Fatalf("ops: %#v", ops)
	}
	if p.SourcePath() != "/x/a.pdf" {
		t.Fatalf("source: %s", p.SourcePath())
	}
}

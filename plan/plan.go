// CLAUDE:SUMMARY YAML plan files — a source document, an ordered list of page operations, and where to write the result.
// Package plan runs page operations described in a YAML file:
//
//	source: scans/batch.pdf
//	output: out/batch.pdf        # optional, default <source>_out.pdf
//	split: true                  # also write _even/_odd files
//	operations:
//	  - op: remove_first_page
//	  - op: insert_blank
//	    position: 2
//	  - op: extract_range
//	    start: 0
//	    end: 9
//
// Relative paths are resolved against the directory of the plan file.
package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pdfpages/pagemanip"
)

// Step is one operation of a plan.
type Step struct {
	Op             string `yaml:"op"`
	pagemanip.Args `yaml:",inline"`
}

// Plan is a parsed plan file.
type Plan struct {
	Source     string `yaml:"source"`
	Output     string `yaml:"output"`
	Split      bool   `yaml:"split"`
	NoSave     bool   `yaml:"no_save"`
	Operations []Step `yaml:"operations"`

	dir string
}

// Result lists what Run wrote.
type Result struct {
	Output string          `json:"output,omitempty"`
	Even   string          `json:"even,omitempty"`
	Odd    string          `json:"odd,omitempty"`
	State  pagemanip.State `json:"state"`
}

// Load reads and validates the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan: %s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// Parse decodes and validates a plan. Relative paths stay relative to the
// working directory.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the source and that every step names a known operation
// with its required arguments.
func (p *Plan) Validate() error {
	if p.Source == "" {
		return fmt.Errorf("source is required: %w", pagemanip.ErrValidation)
	}
	if p.NoSave && p.Output != "" {
		return fmt.Errorf("output and no_save are exclusive: %w", pagemanip.ErrValidation)
	}
	_, err := p.Ops()
	return err
}

// Ops converts the steps to typed operations.
func (p *Plan) Ops() ([]pagemanip.Op, error) {
	ops := make([]pagemanip.Op, 0, len(p.Operations))
	var errs []error
	for i, s := range p.Operations {
		kind, err := pagemanip.ParseOpKind(s.Op)
		if err != nil {
			errs = append(errs, fmt.Errorf("operations[%d]: %w", i, err))
			continue
		}
		op, err := pagemanip.OpFromArgs(kind, s.Args)
		if err != nil {
			errs = append(errs, fmt.Errorf("operations[%d]: %w", i, err))
			continue
		}
		ops = append(ops, op)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ops, nil
}

func (p *Plan) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// SourcePath returns the source resolved against the plan directory.
func (p *Plan) SourcePath() string { return p.resolve(p.Source) }

// Run loads the source, applies every operation in order and writes the
// output. It stops at the first failing operation; nothing is written
// then.
func (p *Plan) Run(ctx context.Context, codec pagemanip.Codec, cfg pagemanip.Config) (Result, error) {
	ops, err := p.Ops()
	if err != nil {
		return Result{}, err
	}
	m, err := pagemanip.Open(ctx, p.SourcePath(), codec, cfg)
	if err != nil {
		return Result{}, err
	}

	for i, op := range ops {
		if err := m.Apply(ctx, op); err != nil {
			return Result{State: m.State()}, fmt.Errorf("plan: operations[%d] %s: %w", i, op.Kind(), err)
		}
	}

	var res Result
	if !p.NoSave {
		if res.Output, err = m.Save(ctx, p.resolve(p.Output)); err != nil {
			return Result{State: m.State()}, err
		}
	}
	if p.Split {
		if res.Even, res.Odd, err = m.ExtractEvenOddAndSave(ctx); err != nil {
			return Result{Output: res.Output, State: m.State()}, err
		}
	}
	res.State = m.State()
	return res, nil
}

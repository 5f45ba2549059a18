// CLAUDE:SUMMARY Manipulator state machine — load, dispatch of the closed Op set, even/odd views, save.
// Package pagemanip rearranges the pages of a single PDF document.
//
// A Manipulator holds the working page sequence of one document together
// with the snapshot taken at load time and the even/odd views used by the
// parity split. Every operation is a pure transform of the sequence; the
// dispatcher alone writes the new sequence, the page count and the last
// operation, all three together or not at all.
//
// Byte-level PDF work is delegated to a Codec (see package pdfcodec).
//
// Usage:
//
//	m, err := pagemanip.Open(ctx, "/data/report.pdf", pdfcodec.New(pdfcodec.Config{}), pagemanip.Config{})
//	if err != nil { ... }
//	_ = m.InsertFirst(ctx)
//	_ = m.ExtractRange(ctx, 0, 4)
//	out, err := m.Save(ctx, "") // /data/report_out.pdf
package pagemanip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Manipulator owns the page state of one document. It is not safe for
// concurrent use; callers sharing an instance must serialise access.
type Manipulator struct {
	name   string
	path   string
	codec  Codec
	cfg    Config
	logger *slog.Logger

	loaded   bool
	current  []Page
	original []Page
	even     []Page
	odd      []Page
	count    int
	lastOp   OpKind
}

// New creates an unloaded Manipulator for the document name in dir.
func New(name, dir string, codec Codec, cfg Config) *Manipulator {
	cfg.defaults()
	return &Manipulator{
		name:   name,
		path:   filepath.Join(dir, name),
		codec:  codec,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Open creates a Manipulator for path and loads it.
func Open(ctx context.Context, path string, codec Codec, cfg Config) (*Manipulator, error) {
	return New(filepath.Base(path), filepath.Dir(path), codec, cfg).Load(ctx)
}

// Load reads every page of the source document. On failure the previous
// state is kept.
func (m *Manipulator) Load(ctx context.Context) (*Manipulator, error) {
	start := time.Now()
	before := m.count

	err := m.load(ctx)
	m.record(ctx, OpLoad, nil, before, m.count, start, err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manipulator) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pages, err := m.codec.Read(ctx, m.path)
	if err != nil {
		return &PathError{Op: OpLoad, Path: m.path, Err: err}
	}

	m.current = pages
	m.original = slices.Clone(pages)
	m.even, m.odd = nil, nil
	m.count = len(pages)
	m.lastOp = ""
	m.loaded = true

	m.logger.Info("document loaded", "path", m.path, "pages", m.count)
	return nil
}

// Apply runs op against the current sequence.
func (m *Manipulator) Apply(ctx context.Context, op Op) error {
	var kind OpKind
	if op != nil {
		kind = op.Kind()
	}
	start := time.Now()
	before := m.count

	err := m.apply(ctx, op)
	m.record(ctx, kind, op, before, m.count, start, err)
	return err
}

func (m *Manipulator) apply(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if op == nil {
		return fmt.Errorf("pagemanip: nil op: %w", ErrUnknownAction)
	}
	if !m.loaded {
		return fmt.Errorf("pagemanip: %s: %w", op.Kind(), ErrNotLoaded)
	}

	res, err := m.transform(ctx, op)
	if err != nil {
		return err
	}
	m.commit(op.Kind(), res)

	m.logger.Debug("operation applied", "path", m.path, "op", op.Kind(), "pages", m.count)
	return nil
}

// result is the outcome of one transform. Nil views are left untouched.
type result struct {
	pages []Page
	even  []Page
	odd   []Page
}

func (m *Manipulator) transform(ctx context.Context, op Op) (result, error) {
	cur := m.current
	n := len(cur)

	switch o := op.(type) {
	case InsertBlank:
		return m.insert(ctx, o.Kind(), o.Position)
	case InsertFirst:
		return m.insert(ctx, o.Kind(), 0)
	case InsertLast:
		return m.insert(ctx, o.Kind(), n)
	case InsertAfter:
		if o.Page < 0 || o.Page >= n {
			return result{}, &IndexError{Op: o.Kind(), Index: o.Page, Min: 0, Max: n - 1}
		}
		return m.insert(ctx, o.Kind(), o.Page+1)

	case ExtractPages:
		if len(o.Indices) == 0 {
			return result{}, fmt.Errorf("pagemanip: %s: indices are required: %w", o.Kind(), ErrValidation)
		}
		return result{pages: pick(cur, o.Indices)}, nil
	case ExtractRange:
		if o.Start < 0 || o.Start >= n {
			return result{}, &IndexError{Op: o.Kind(), Index: o.Start, Min: 0, Max: n - 1}
		}
		if o.End < o.Start || o.End >= n {
			return result{}, &IndexError{Op: o.Kind(), Index: o.End, Min: o.Start, Max: n - 1}
		}
		return result{pages: sliceRange(cur, o.Start, o.End)}, nil
	case ExtractEvens:
		even := parity(cur, 0)
		return result{pages: even, even: even}, nil
	case ExtractOdds:
		odd := parity(cur, 1)
		return result{pages: odd, odd: odd}, nil

	case RemoveFirst:
		if n == 0 {
			return result{}, fmt.Errorf("pagemanip: %s: %w", o.Kind(), ErrEmptyDocument)
		}
		return result{pages: slices.Clone(cur[1:])}, nil
	case RemoveLast:
		if n == 0 {
			return result{}, fmt.Errorf("pagemanip: %s: %w", o.Kind(), ErrEmptyDocument)
		}
		return result{pages: slices.Clone(cur[:n-1])}, nil
	case RemovePages:
		if len(o.Indices) == 0 {
			return result{}, fmt.Errorf("pagemanip: %s: indices are required: %w", o.Kind(), ErrValidation)
		}
		return result{pages: without(cur, o.Indices)}, nil

	case Restore:
		return result{pages: slices.Clone(m.original)}, nil

	default:
		return result{}, fmt.Errorf("pagemanip: %T: %w", op, ErrUnknownAction)
	}
}

func (m *Manipulator) insert(ctx context.Context, kind OpKind, pos int) (result, error) {
	if pos < 0 || pos > len(m.current) {
		return result{}, &IndexError{Op: kind, Index: pos, Min: 0, Max: len(m.current)}
	}
	blank, err := m.codec.NewBlank(ctx)
	if err != nil {
		return result{}, fmt.Errorf("pagemanip: %s: create blank page: %w", kind, err)
	}
	return result{pages: insertAt(m.current, pos, blank)}, nil
}

func (m *Manipulator) commit(kind OpKind, res result) {
	m.current = res.pages
	m.count = len(res.pages)
	m.lastOp = kind
	if res.even != nil {
		m.even = res.even
	}
	if res.odd != nil {
		m.odd = res.odd
	}
}

// --- named entry points ---

// InsertBlank inserts a blank page at position (0 <= position <= PageCount).
func (m *Manipulator) InsertBlank(ctx context.Context, position int) error {
	return m.Apply(ctx, InsertBlank{Position: position})
}

// InsertFirst inserts a blank page at position 0.
func (m *Manipulator) InsertFirst(ctx context.Context) error {
	return m.Apply(ctx, InsertFirst{})
}

// InsertLast appends a blank page.
func (m *Manipulator) InsertLast(ctx context.Context) error {
	return m.Apply(ctx, InsertLast{})
}

// InsertAfter inserts a blank page right after the page at position page.
func (m *Manipulator) InsertAfter(ctx context.Context, page int) error {
	return m.Apply(ctx, InsertAfter{Page: page})
}

// ExtractByIndices keeps the pages at indices, in the order of indices.
func (m *Manipulator) ExtractByIndices(ctx context.Context, indices []int) error {
	return m.Apply(ctx, ExtractPages{Indices: indices})
}

// ExtractRange keeps pages start..end inclusive.
func (m *Manipulator) ExtractRange(ctx context.Context, start, end int) error {
	return m.Apply(ctx, ExtractRange{Start: start, End: end})
}

// ExtractEvens keeps the pages at even positions and records them as the even view.
func (m *Manipulator) ExtractEvens(ctx context.Context) error {
	return m.Apply(ctx, ExtractEvens{})
}

// ExtractOdds keeps the pages at odd positions and records them as the odd view.
func (m *Manipulator) ExtractOdds(ctx context.Context) error {
	return m.Apply(ctx, ExtractOdds{})
}

// RemoveFirst drops the first page.
func (m *Manipulator) RemoveFirst(ctx context.Context) error {
	return m.Apply(ctx, RemoveFirst{})
}

// RemoveLast drops the last page.
func (m *Manipulator) RemoveLast(ctx context.Context) error {
	return m.Apply(ctx, RemoveLast{})
}

// RemovePages drops the pages at indices.
func (m *Manipulator) RemovePages(ctx context.Context, indices []int) error {
	return m.Apply(ctx, RemovePages{Indices: indices})
}

// Restore resets the current sequence to the pages read at load time.
func (m *Manipulator) Restore(ctx context.Context) error {
	return m.Apply(ctx, Restore{})
}

// --- persistence ---

// Save writes the current sequence to dest, or to DefaultOutputPath when
// dest is empty, and returns the path written. A zero-page sequence is
// still handed to the codec.
func (m *Manipulator) Save(ctx context.Context, dest string) (string, error) {
	if dest == "" && m.loaded {
		dest = m.DefaultOutputPath()
	}
	return m.saveView(ctx, "current", m.current, dest)
}

// SaveEven writes the even view produced by ExtractEvens or
// ExtractEvenOddAndSave.
func (m *Manipulator) SaveEven(ctx context.Context, dest string) (string, error) {
	if dest == "" && m.loaded {
		dest, _ = m.EvenOddPaths()
	}
	return m.saveView(ctx, "even", m.even, dest)
}

// SaveOdd writes the odd view produced by ExtractOdds or
// ExtractEvenOddAndSave.
func (m *Manipulator) SaveOdd(ctx context.Context, dest string) (string, error) {
	if dest == "" && m.loaded {
		_, dest = m.EvenOddPaths()
	}
	return m.saveView(ctx, "odd", m.odd, dest)
}

func (m *Manipulator) saveView(ctx context.Context, view string, pages []Page, dest string) (string, error) {
	start := time.Now()
	err := m.save(ctx, view, pages, dest)
	m.record(ctx, OpSave, map[string]string{"view": view, "path": dest}, m.count, m.count, start, err)
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (m *Manipulator) save(ctx context.Context, view string, pages []Page, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.loaded {
		return fmt.Errorf("pagemanip: %s: %w", OpSave, ErrNotLoaded)
	}
	if pages == nil && view != "current" {
		return fmt.Errorf("pagemanip: %s: %s pages not extracted: %w", OpSave, view, ErrValidation)
	}
	if err := m.codec.Write(ctx, slices.Clone(pages), dest); err != nil {
		return &PathError{Op: OpSave, Path: dest, Err: err}
	}
	m.logger.Info("document saved", "path", dest, "view", view, "pages", len(pages))
	return nil
}

// ExtractEvenOddAndSave writes the even-position and odd-position pages to
// <base>_even<ext> and <base>_odd<ext> without touching the current
// sequence, and keeps both as the even/odd views. If the second write
// fails the first file is removed.
func (m *Manipulator) ExtractEvenOddAndSave(ctx context.Context) (evenPath, oddPath string, err error) {
	start := time.Now()
	evenPath, oddPath, err = m.splitAndSave(ctx)
	m.record(ctx, OpExtractEvenOddSave, map[string]string{"even": evenPath, "odd": oddPath}, m.count, m.count, start, err)
	return evenPath, oddPath, err
}

func (m *Manipulator) splitAndSave(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if !m.loaded {
		return "", "", fmt.Errorf("pagemanip: %s: %w", OpExtractEvenOddSave, ErrNotLoaded)
	}

	even, odd := parity(m.current, 0), parity(m.current, 1)
	evenPath, oddPath := m.EvenOddPaths()

	if err := m.codec.Write(ctx, even, evenPath); err != nil {
		return "", "", &PathError{Op: OpExtractEvenOddSave, Path: evenPath, Err: err}
	}
	if err := m.codec.Write(ctx, odd, oddPath); err != nil {
		if rmErr := os.Remove(evenPath); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.Warn("remove partial split output", "path", evenPath, "error", rmErr)
		}
		return "", "", &PathError{Op: OpExtractEvenOddSave, Path: oddPath, Err: err}
	}

	m.even, m.odd = even, odd
	m.lastOp = OpExtractEvenOddSave

	m.logger.Info("parity split saved", "even", evenPath, "odd", oddPath,
		"even_pages", len(even), "odd_pages", len(odd))
	return evenPath, oddPath, nil
}

func (m *Manipulator) record(ctx context.Context, kind OpKind, params any, before, after int, start time.Time, err error) {
	if m.cfg.Recorder == nil {
		return
	}
	m.cfg.Recorder.Record(ctx, Record{
		Source:   m.path,
		Op:       kind,
		Params:   params,
		Before:   before,
		After:    after,
		Err:      err,
		Duration: time.Since(start),
	})
}

// --- accessors ---

// Name returns the source document name.
func (m *Manipulator) Name() string { return m.name }

// Path returns the source document path.
func (m *Manipulator) Path() string { return m.path }

// Loaded reports whether Load has succeeded.
func (m *Manipulator) Loaded() bool { return m.loaded }

// PageCount returns the length of the current sequence.
func (m *Manipulator) PageCount() int { return m.count }

// LastOperation returns the kind of the last applied operation, or "".
func (m *Manipulator) LastOperation() OpKind { return m.lastOp }

// Pages returns a copy of the current sequence.
func (m *Manipulator) Pages() []Page { return slices.Clone(m.current) }

// OriginalPages returns a copy of the sequence read at load time.
func (m *Manipulator) OriginalPages() []Page { return slices.Clone(m.original) }

// EvenPages returns a copy of the even view, nil if never computed.
func (m *Manipulator) EvenPages() []Page { return slices.Clone(m.even) }

// OddPages returns a copy of the odd view, nil if never computed.
func (m *Manipulator) OddPages() []Page { return slices.Clone(m.odd) }

// State returns a serialisable snapshot.
func (m *Manipulator) State() State {
	st := State{
		Name:          m.name,
		Path:          m.path,
		Loaded:        m.loaded,
		PageCount:     m.count,
		OriginalCount: len(m.original),
		LastOperation: m.lastOp,
		Pages:         sourceNumbers(m.current),
	}
	if m.even != nil {
		st.EvenPages = sourceNumbers(m.even)
	}
	if m.odd != nil {
		st.OddPages = sourceNumbers(m.odd)
	}
	return st
}

// CLAUDE:SUMMARY pdfcpu-backed page codec — reads a PDF into page handles, creates blanks, writes page sequences.
// Package pdfcodec implements pagemanip.Codec on top of pdfcpu.
//
// A loaded document is kept in memory as raw bytes; page handles reference
// it by 1-based page number. Writing collects the referenced pages in the
// requested order (duplicates allowed) with pdfcpu's collect operation,
// then inserts blank pages at their final positions.
//
// Usage:
//
//	codec := pdfcodec.New(pdfcodec.Config{})
//	m, err := pagemanip.Open(ctx, "/data/in.pdf", codec, pagemanip.Config{})
package pdfcodec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/pdfpages/pagemanip"
)

var (
	// ErrNoPages is returned by Write for an empty page sequence.
	ErrNoPages = errors.New("pdfcodec: cannot write a document without pages")
	// ErrMixedSources is returned by Write when pages come from more than
	// one loaded document.
	ErrMixedSources = errors.New("pdfcodec: pages from different documents")
	// ErrForeignPage is returned by Write for a handle not produced by a Codec.
	ErrForeignPage = errors.New("pdfcodec: foreign page handle")
)

// Config configures the codec.
type Config struct {
	// MaxFileSize is the maximum source size to load (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// FileMode is the permission of written files (default: 0644).
	FileMode os.FileMode `json:"file_mode" yaml:"file_mode"`

	// Logger for debug messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.FileMode == 0 {
		c.FileMode = 0o644
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Codec reads and writes PDF page sequences.
type Codec struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Codec.
func New(cfg Config) *Codec {
	cfg.defaults()
	return &Codec{cfg: cfg, logger: cfg.Logger}
}

// source is one document read into memory.
type source struct {
	path  string
	raw   []byte
	pages int
}

// page is a handle on one page of a source, or a blank page when src is nil.
type page struct {
	src *source
	nr  int
}

func (p *page) Source() int { return p.nr }
func (p *page) Blank() bool { return p.src == nil }

// Read loads the document at path. The file is read fully and closed
// before parsing.
func (c *Codec) Read(ctx context.Context, path string) ([]pagemanip.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pdfcodec: stat %s: %w: %w", path, pagemanip.ErrNotFound, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("pdfcodec: %s is a directory: %w", path, pagemanip.ErrNotFound)
	}
	if info.Size() > c.cfg.MaxFileSize {
		return nil, fmt.Errorf("pdfcodec: file too large: %d bytes (max %d): %w", info.Size(), c.cfg.MaxFileSize, pagemanip.ErrFormat)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdfcodec: read %s: %w: %w", path, pagemanip.ErrNotFound, err)
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(raw), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcodec: parse %s: %w: %w", path, pagemanip.ErrFormat, err)
	}

	src := &source{path: path, raw: raw, pages: pdfCtx.PageCount}
	pages := make([]pagemanip.Page, src.pages)
	for i := range pages {
		pages[i] = &page{src: src, nr: i + 1}
	}

	c.logger.Debug("pdf read", "path", path, "pages", src.pages, "bytes", len(raw))
	return pages, nil
}

// NewBlank returns a fresh blank page handle.
func (c *Codec) NewBlank(_ context.Context) (pagemanip.Page, error) {
	return &page{}, nil
}

// Write serialises pages to path. The file is replaced atomically.
func (c *Codec) Write(ctx context.Context, pages []pagemanip.Page, path string) error {
	if len(pages) == 0 {
		return ErrNoPages
	}

	data, err := c.render(ctx, pages)
	if err != nil {
		return err
	}
	if err := c.writeFile(path, data); err != nil {
		return err
	}

	c.logger.Debug("pdf written", "path", path, "pages", len(pages), "bytes", len(data))
	return nil
}

// render builds the output document in memory.
func (c *Codec) render(ctx context.Context, pages []pagemanip.Page) ([]byte, error) {
	var (
		src    *source
		sel    []string
		blanks []int
	)
	for i, p := range pages {
		pg, ok := p.(*page)
		if !ok || pg == nil {
			return nil, fmt.Errorf("%w: position %d (%T)", ErrForeignPage, i, p)
		}
		if pg.src == nil {
			blanks = append(blanks, i)
			continue
		}
		if src == nil {
			src = pg.src
		} else if pg.src != src {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedSources, src.path, pg.src.path)
		}
		sel = append(sel, strconv.Itoa(pg.nr))
	}

	if src == nil {
		return blankDocument(len(blanks)), nil
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(src.raw), &out, sel, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("pdfcodec: collect pages: %w", err)
	}

	data := out.Bytes()
	count := len(sel)
	// Blanks are placed in ascending order; when blank i is placed every
	// earlier final position is already filled.
	for _, pos := range blanks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before, at := true, pos+1
		if pos >= count {
			before, at = false, count
		}
		var next bytes.Buffer
		err := api.InsertPages(bytes.NewReader(data), &next, []string{strconv.Itoa(at)}, before, nil, model.NewDefaultConfiguration())
		if err != nil {
			return nil, fmt.Errorf("pdfcodec: insert blank page at %d: %w", pos, err)
		}
		data = next.Bytes()
		count++
	}
	return data, nil
}

func (c *Codec) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdfpages-*.pdf")
	if err != nil {
		return fmt.Errorf("pdfcodec: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("pdfcodec: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pdfcodec: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, c.cfg.FileMode); err != nil {
		return fmt.Errorf("pdfcodec: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("pdfcodec: rename to %s: %w", path, err)
	}
	return nil
}

// Info describes a PDF file on disk.
type Info struct {
	Path  string       `json:"path"`
	Bytes int64        `json:"bytes"`
	Pages int          `json:"pages"`
	Sizes [][2]float64 `json:"sizes"` // width, height in points, per page
}

// Inspect returns the page count and page sizes of the PDF at path.
func Inspect(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("pdfcodec: %w: %w", pagemanip.ErrNotFound, err)
	}
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("pdfcodec: page dims %s: %w: %w", path, pagemanip.ErrFormat, err)
	}
	info := Info{Path: path, Bytes: st.Size(), Pages: len(dims), Sizes: make([][2]float64, len(dims))}
	for i, d := range dims {
		info.Sizes[i] = [2]float64{d.Width, d.Height}
	}
	return info, nil
}

package pagemanip

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// fakePage is a page handle whose identity is its pointer.
type fakePage struct {
	nr int
}

func (p *fakePage) Source() int { return p.nr }
func (p *fakePage) Blank() bool { return p.nr == 0 }

// fakeCodec serves documents from an in-memory table of page counts and
// records every write.
type fakeCodec struct {
	mu       sync.Mutex
	docs     map[string]int
	corrupt  map[string]bool
	writes   map[string][]Page
	blanks   int
	failPath string
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		docs:    make(map[string]int),
		corrupt: make(map[string]bool),
		writes:  make(map[string][]Page),
	}
}

func (c *fakeCodec) add(path string, pages int) { c.docs[path] = pages }

func (c *fakeCodec) Read(_ context.Context, path string) ([]Page, error) {
	if c.corrupt[path] {
		return nil, fmt.Errorf("fake: parse %s: %w", path, ErrFormat)
	}
	n, ok := c.docs[path]
	if !ok {
		return nil, fmt.Errorf("fake: open %s: %w", path, ErrNotFound)
	}
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = &fakePage{nr: i + 1}
	}
	return pages, nil
}

func (c *fakeCodec) NewBlank(_ context.Context) (Page, error) {
	c.mu.Lock()
	c.blanks++
	c.mu.Unlock()
	return &fakePage{}, nil
}

func (c *fakeCodec) Write(_ context.Context, pages []Page, path string) error {
	if path == c.failPath {
		return errors.New("fake: disk full")
	}
	c.mu.Lock()
	c.writes[path] = pages
	c.mu.Unlock()
	// Touch the file so removal of partial output can be observed.
	return os.WriteFile(path, []byte("%PDF-fake"), 0o644)
}

// recorder collects records in memory.
type recorder struct {
	recs []Record
}

func (r *recorder) Record(_ context.Context, rec Record) { r.recs = append(r.recs, rec) }

// Package pagetest provides a text-file Codec for tests of packages built
// on pagemanip.
//
// A document is a text file holding its page count ("3"). Written files
// hold the source numbers of the pages, comma-separated, 0 for blanks
// ("0,1,2,3").
package pagetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/hazyhaar/pdfpages/pagemanip"
)

// Codec implements pagemanip.Codec on text files.
type Codec struct{}

type page int

func (p page) Source() int { return int(p) }
func (p page) Blank() bool { return p == 0 }

func (Codec) Read(ctx context.Context, path string) ([]pagemanip.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pagemanip.ErrNotFound, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q is not a page count", pagemanip.ErrFormat, data)
	}
	pages := make([]pagemanip.Page, n)
	for i := range pages {
		pages[i] = page(i + 1)
	}
	return pages, nil
}

func (Codec) NewBlank(context.Context) (pagemanip.Page, error) { return page(0), nil }

func (Codec) Write(_ context.Context, pages []pagemanip.Page, path string) error {
	nrs := make([]string, len(pages))
	for i, p := range pages {
		nrs[i] = strconv.Itoa(p.Source())
	}
	return os.WriteFile(path, []byte(strings.Join(nrs, ",")), 0o644)
}

// WriteDoc creates dir/name describing an n-page document and returns its path.
func WriteDoc(t testing.TB, dir, name string, n int) string {
	t.Helper()
	return WriteFile(t, filepath.Join(dir, name), strconv.Itoa(n))
}

// WriteFile writes content to path and returns path.
func WriteFile(t testing.TB, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ReadOut returns the content of a file written by Codec.
func ReadOut(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

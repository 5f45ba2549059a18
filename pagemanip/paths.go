package pagemanip

import (
	"path/filepath"
	"strings"
)

// Suffixes appended to the source name for derived output files.
const (
	SuffixOut  = "_out"
	SuffixEven = "_even"
	SuffixOdd  = "_odd"
)

// SuffixPath inserts suffix before the extension of path:
// "dir/report.pdf" + "_even" gives "dir/report_even.pdf".
func SuffixPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// outputPath derives a destination from the source name.
func (m *Manipulator) outputPath(suffix string) string {
	dir := m.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(m.path)
	}
	return filepath.Join(dir, SuffixPath(m.name, suffix))
}

// DefaultOutputPath is where Save writes when no destination is given.
func (m *Manipulator) DefaultOutputPath() string { return m.outputPath(SuffixOut) }

// EvenOddPaths returns the destinations used by ExtractEvenOddAndSave.
func (m *Manipulator) EvenOddPaths() (even, odd string) {
	return m.outputPath(SuffixEven), m.outputPath(SuffixOdd)
}

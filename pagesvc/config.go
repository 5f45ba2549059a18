package pagesvc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pdfpages/pdfcodec"
)

// Config holds the service configuration, usually read from pdfpages.yaml.
type Config struct {
	Listen string `yaml:"listen"`
	// MaxConns caps concurrent HTTP connections (0: unlimited).
	MaxConns int `yaml:"max_conns"`

	// JournalPath is the SQLite journal location. Empty disables the journal.
	JournalPath      string        `yaml:"journal_path"`
	JournalRetention time.Duration `yaml:"journal_retention"`
	// JournalBusyTimeout is how long journal writes wait on a locked
	// database (0: journal default).
	JournalBusyTimeout time.Duration `yaml:"journal_busy_timeout"`

	// OutputDir receives derived output files. Empty keeps them next to
	// the source document.
	OutputDir string `yaml:"output_dir"`

	// Roots restricts the documents that can be opened or written. Empty
	// allows any path.
	Roots []string `yaml:"roots"`

	MaxSessions int           `yaml:"max_sessions"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	Codec pdfcodec.Config `yaml:"codec"`
}

// DefaultConfig returns the defaults applied before the YAML file.
func DefaultConfig() *Config {
	return &Config{
		Listen:           ":8095",
		MaxConns:         256,
		JournalPath:      "data/pdfpages.db",
		JournalRetention: 30 * 24 * time.Hour,
		MaxSessions:      64,
		IdleTimeout:      30 * time.Minute,
	}
}

// LoadConfig reads path and returns DefaultConfig merged with it.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be > 0")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be >= 0")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must be >= 0")
	}
	if c.JournalBusyTimeout < 0 {
		return fmt.Errorf("journal_busy_timeout must be >= 0")
	}
	if c.JournalPath != "" && c.JournalRetention <= 0 {
		return fmt.Errorf("journal_retention must be > 0")
	}
	for i, r := range c.Roots {
		if !filepath.IsAbs(r) {
			return fmt.Errorf("roots[%d]: %q must be absolute", i, r)
		}
	}
	if c.OutputDir != "" {
		if info, err := os.Stat(c.OutputDir); err != nil || !info.IsDir() {
			return fmt.Errorf("output_dir %q is not a directory", c.OutputDir)
		}
	}
	return nil
}

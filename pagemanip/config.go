// CLAUDE:SUMMARY Configuration struct and defaults for the page manipulator.
package pagemanip

import "log/slog"

// Config configures a Manipulator.
type Config struct {
	// OutputDir is where derived output paths are placed (default: the
	// directory of the source document).
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Logger for debug/info messages.
	Logger *slog.Logger `json:"-" yaml:"-"`

	// Recorder receives one record per operation. Optional.
	Recorder Recorder `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/nexgen-logistics/shipmerge/internal/adapter"
	"github.com/nexgen-logistics/shipmerge/internal/merge"
)

// OutputFormats lists the accepted output_format values.
var OutputFormats = []string{"auto", "text", "markdown", "json"}

// LogFormats lists the accepted log_format values.
var LogFormats = []string{"text", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !slices.Contains(merge.Backends(), c.Backend) {
		return &merge.UnknownBackendError{Name: c.Backend, Available: merge.Backends()}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if !slices.Contains(LogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log_format %q (expected one of: %s)", c.LogFormat, strings.Join(LogFormats, ", "))
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output_format %q (expected one of: %s)", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("invalid serve.port %d", c.Serve.Port)
	}
	if c.Publish != nil {
		if err := c.Publish.Validate(); err != nil {
			return fmt.Errorf("invalid publish configuration: %w", err)
		}
	}
	return nil
}

// Validate checks the publish target against the adapter registry.
func (p *PublishConfig) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("publish type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(p.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      p.Type,
			Available: adapter.ListAdapters(),
		}
	}
	if p.Table == "" {
		return fmt.Errorf("publish table is required")
	}
	return nil
}

// ValidateDataDir checks that the data directory exists.
func (c *Config) ValidateDataDir() error {
	if _, err := os.Stat(c.DataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s\nHint: Create the directory or use --data-dir to specify a different path", c.DataDir)
	}
	return nil
}

// ParseLogLevel converts a log_level value to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q (expected debug, info, warn or error)", s)
	}
	return level, nil
}

// NewLogger builds the CLI logger writing to w.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

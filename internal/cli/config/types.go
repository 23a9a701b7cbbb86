// Package config provides configuration management for the shipmerge CLI.
//
// Configuration is layered with koanf: built-in defaults, then
// shipmerge.yaml, then SHIPMERGE_ environment variables, then explicitly
// set command-line flags.
package config

import (
	"path/filepath"

	"github.com/nexgen-logistics/shipmerge/internal/adapter"
	"github.com/nexgen-logistics/shipmerge/internal/merge"
)

// ServeConfig holds configuration for the data API server.
type ServeConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// PublishConfig is the database the merged dataset is copied into.
type PublishConfig struct {
	Type     string            `koanf:"type"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Table    string            `koanf:"table"`
	Options  map[string]string `koanf:"options"`
}

// AdapterConfig converts the publish target to an adapter configuration.
func (p *PublishConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     p.Type,
		Path:     p.Database,
		Host:     p.Host,
		Port:     p.Port,
		Database: p.Database,
		Username: p.User,
		Password: p.Password,
		Schema:   p.Schema,
		Options:  p.Options,
	}
}

// QualifiedTable returns schema.table for the publish target.
func (p *PublishConfig) QualifiedTable() string {
	if p.Schema == "" {
		return p.Table
	}
	return p.Schema + "." + p.Table
}

// Config holds all CLI configuration options.
type Config struct {
	DataDir        string               `koanf:"data_dir"`
	Output         string               `koanf:"output"`
	Backend        string               `koanf:"backend"`
	DatabasePath   string               `koanf:"database"`
	StatePath      string               `koanf:"state_path"`
	Environment    string               `koanf:"environment"`
	LogLevel       string               `koanf:"log_level"`
	LogFormat      string               `koanf:"log_format"`
	OutputFormat   string               `koanf:"output_format"`
	StrictContract bool                 `koanf:"strict_contract"`
	CanonicalNames bool                 `koanf:"canonical_names"`
	Serve          ServeConfig          `koanf:"serve"`
	Publish        *PublishConfig       `koanf:"publish"`
	Environments   map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	DataDir string         `koanf:"data_dir"`
	Output  string         `koanf:"output"`
	Publish *PublishConfig `koanf:"publish"`
}

// OutputPath returns the merged file path, defaulting to the data
// directory.
func (c *Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	return filepath.Join(c.DataDir, merge.DefaultOutputFile)
}

// Default configuration values.
const (
	DefaultDataDir        = "."
	DefaultStateFile      = ".shipmerge/state.db"
	DefaultEnv            = "dev"
	DefaultLogLevel       = "warn"
	DefaultLogFormat      = "text"
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultServePort      = 8501
	DefaultPublishTable   = "merged_master_dataset"
	DefaultPostgresPort   = 5432
	DefaultPostgresSchema = "public"
)

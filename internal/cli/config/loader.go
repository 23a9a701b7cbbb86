package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/nexgen-logistics/shipmerge/internal/merge"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix is the prefix of environment variables read as configuration.
// A double underscore separates nested keys: SHIPMERGE_SERVE__PORT.
const EnvPrefix = "SHIPMERGE_"

// ConfigFileNames are the file names searched for, in order.
var ConfigFileNames = []string{"shipmerge.yaml", "shipmerge.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names to configuration keys. Flags not listed here
// are command options and never reach the configuration.
var flagKeys = map[string]string{
	"data-dir":        "data_dir",
	"out":             "output",
	"backend":         "backend",
	"database":        "database",
	"state":           "state_path",
	"env":             "environment",
	"log-level":       "log_level",
	"log-format":      "log_format",
	"format":          "output_format",
	"strict-contract": "strict_contract",
	"canonical-names": "canonical_names",
	"port":            "serve.port",
	"watch":           "serve.watch",
	"publish-table":   "publish.table",
}

// pathFlags are resolved against the working directory when set on the
// command line.
var pathFlags = map[string]bool{
	"data-dir": true,
	"out":      true,
	"database": true,
	"state":    true,
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Directory of an explicit --config file
//  2. Search upward from CWD for shipmerge.yaml
//  3. Current working directory
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"data_dir":        DefaultDataDir,
		"backend":         merge.BackendMemory,
		"state_path":      DefaultStateFile,
		"environment":     DefaultEnv,
		"log_level":       DefaultLogLevel,
		"log_format":      DefaultLogFormat,
		"output_format":   DefaultOutput,
		"strict_contract": true,
		"canonical_names": false,
		"serve.port":      DefaultServePort,
		"serve.watch":     true,
	}
}

// LoadConfig loads configuration from defaults, the config file,
// environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile)

	// Paths given as flags are relative to CWD, not the project root.
	flagPaths := make(map[string]string)
	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			if !pathFlags[f.Name] || f.Value.String() == "" {
				return
			}
			v := f.Value.String()
			if v != ":memory:" {
				if abs, err := filepath.Abs(v); err == nil {
					v = abs
				}
			}
			flagPaths[flagKeys[f.Name]] = v
		})
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = configExistsIn(projectRoot)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables
	// Transform: SHIPMERGE_DATA_DIR -> data_dir, SHIPMERGE_SERVE__PORT -> serve.port
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// 6. Environment overrides
	if envCfg, ok := cfg.Environments[cfg.Environment]; ok {
		if envCfg.DataDir != "" {
			cfg.DataDir = envCfg.DataDir
		}
		if envCfg.Output != "" {
			cfg.Output = envCfg.Output
		}
		if envCfg.Publish != nil {
			cfg.Publish = MergePublishConfig(cfg.Publish, envCfg.Publish)
		}
	}

	// 7. Resolve paths
	resolve := func(key string, p *string) {
		if v, ok := flagPaths[key]; ok {
			*p = v
			return
		}
		*p = resolvePathRelativeTo(*p, projectRoot)
	}
	resolve("data_dir", &cfg.DataDir)
	resolve("output", &cfg.Output)
	resolve("database", &cfg.DatabasePath)
	resolve("state_path", &cfg.StatePath)

	if cfg.Publish != nil {
		ApplyPublishDefaults(cfg.Publish)
		expandPublishEnvVars(cfg.Publish)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration loaded by LoadConfig.
func GetCurrentConfig() *Config {
	return currentConfig
}

// All returns the merged configuration as a flat key map.
func All() map[string]interface{} {
	return k.All()
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandPublishEnvVars expands environment variables in credential fields.
func expandPublishEnvVars(p *PublishConfig) {
	p.Password = expandEnvVars(p.Password)
	p.User = expandEnvVars(p.User)
	p.Host = expandEnvVars(p.Host)
	p.Database = expandEnvVars(p.Database)
}

// ApplyPublishDefaults fills unset publish fields.
func ApplyPublishDefaults(p *PublishConfig) {
	if p.Type == "" {
		p.Type = "postgres"
	}
	if p.Table == "" {
		p.Table = DefaultPublishTable
	}
	if p.Type == "postgres" {
		if p.Port == 0 {
			p.Port = DefaultPostgresPort
		}
		if p.Schema == "" {
			p.Schema = DefaultPostgresSchema
		}
	}
}

// MergePublishConfig merges two publish configs, with override taking precedence.
func MergePublishConfig(base, override *PublishConfig) *PublishConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	merged.Options = make(map[string]string, len(base.Options)+len(override.Options))
	for key, val := range base.Options {
		merged.Options[key] = val
	}

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	if override.Table != "" {
		merged.Table = override.Table
	}
	for key, val := range override.Options {
		merged.Options[key] = val
	}

	return &merged
}

package commands

import (
	"fmt"
	"log/slog"

	"github.com/nexgen-logistics/shipmerge/internal/cli/config"
	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/merge"
	"github.com/nexgen-logistics/shipmerge/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	mode := output.Mode(cfg.OutputFormat)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}, nil
}

// OpenStore opens and migrates the run history database.
// The returned cleanup function closes it.
func (c *CommandContext) OpenStore() (state.Store, func(), error) {
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// Backend creates the configured merge backend.
func (c *CommandContext) Backend() (merge.Backend, error) {
	return merge.NewBackend(c.Cfg.Backend, merge.BackendConfig{
		DuckDBPath: c.Cfg.DatabasePath,
		Logger:     c.Logger,
	})
}

// getConfig returns the configuration loaded by the root command, loading
// it from the command's flags when the command runs on its own.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	cfgFile := ""
	if f := cmd.Flags().Lookup("config"); f != nil {
		cfgFile = f.Value.String()
	}
	return config.LoadConfig(cfgFile, cmd.Flags())
}

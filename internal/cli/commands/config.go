package commands

import (
	"strconv"
	"strings"

	"github.com/nexgen-logistics/shipmerge/internal/cli/config"
	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maskedPassword replaces a configured password in output.
const maskedPassword = "********"

// setting is one resolved configuration value.
type setting struct {
	Key   string
	Value any
}

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, shipmerge.yaml, SHIPMERGE_*
environment variables, flags and the selected environment have been
applied. Paths are shown resolved. Passwords are masked.`,
		Example: `  # Show the effective configuration
  shipmerge config

  # Show the prod configuration as YAML
  shipmerge config --env prod --yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runConfig(cc, asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")

	return cmd
}

func effectiveSettings(cfg *config.Config) []setting {
	settings := []setting{
		{"data_dir", cfg.DataDir},
		{"output", cfg.OutputPath()},
		{"backend", cfg.Backend},
		{"database", cfg.DatabasePath},
		{"state_path", cfg.StatePath},
		{"environment", cfg.Environment},
		{"log_level", cfg.LogLevel},
		{"log_format", cfg.LogFormat},
		{"output_format", cfg.OutputFormat},
		{"strict_contract", cfg.StrictContract},
		{"canonical_names", cfg.CanonicalNames},
		{"serve.port", cfg.Serve.Port},
		{"serve.watch", cfg.Serve.Watch},
	}
	if p := cfg.Publish; p != nil {
		password := ""
		if p.Password != "" {
			password = maskedPassword
		}
		settings = append(settings,
			setting{"publish.type", p.Type},
			setting{"publish.host", p.Host},
			setting{"publish.port", p.Port},
			setting{"publish.database", p.Database},
			setting{"publish.user", p.User},
			setting{"publish.password", password},
			setting{"publish.table", p.QualifiedTable()},
		)
	}
	return settings
}

// nestSettings turns dotted keys into nested maps.
func nestSettings(settings []setting) map[string]any {
	out := make(map[string]any)
	for _, s := range settings {
		m := out
		key := s.Key
		for {
			head, rest, ok := strings.Cut(key, ".")
			if !ok {
				break
			}
			child, _ := m[head].(map[string]any)
			if child == nil {
				child = make(map[string]any)
				m[head] = child
			}
			m, key = child, rest
		}
		m[key] = s.Value
	}
	return out
}

func formatSetting(v any) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "-"
		}
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

func runConfig(cc *CommandContext, asYAML bool) error {
	r := cc.Renderer
	settings := effectiveSettings(cc.Cfg)

	if asYAML {
		enc := yaml.NewEncoder(r.Writer())
		enc.SetIndent(2)
		if err := enc.Encode(nestSettings(settings)); err != nil {
			return err
		}
		return enc.Close()
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(nestSettings(settings))
	}

	r.Header(1, "Configuration")
	file := config.GetConfigFileUsed()
	if file == "" {
		file = r.Muted("none (defaults)")
	}
	r.KeyValue("Config file", file)
	r.KeyValue("Project root", cc.Cfg.ProjectRoot)
	r.Println("")

	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		rows = append(rows, []string{s.Key, formatSetting(s.Value)})
	}
	r.Table([]string{"Key", "Value"}, rows)
	return nil
}

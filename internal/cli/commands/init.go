package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexgen-logistics/shipmerge/internal/cli/config"
	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/merge"
	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configFileName is the file init writes.
const configFileName = "shipmerge.yaml"

// projectFile is the shape of a generated shipmerge.yaml.
type projectFile struct {
	DataDir        string                   `yaml:"data_dir"`
	Backend        string                   `yaml:"backend"`
	Environment    string                   `yaml:"environment"`
	LogLevel       string                   `yaml:"log_level"`
	StrictContract bool                     `yaml:"strict_contract"`
	CanonicalNames bool                     `yaml:"canonical_names"`
	Serve          config.ServeConfig       `yaml:"serve"`
	Publish        *projectPublish          `yaml:"publish,omitempty"`
	Environments   map[string]projectEnvCfg `yaml:"environments,omitempty"`
}

type projectPublish struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

type projectEnvCfg struct {
	DataDir string `yaml:"data_dir"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var postgres bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default shipmerge.yaml",
		Long: `Initialize a shipmerge project by writing shipmerge.yaml with the default
settings. The seven source files are expected in the project directory.

Use --postgres to include a publish section for a PostgreSQL target; the
password is read from the PGPASSWORD environment variable.`,
		Example: `  # Initialize in the current directory
  shipmerge init

  # Initialize another directory with a publish target
  shipmerge init ./logistics --postgres

  # Overwrite an existing configuration
  shipmerge init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			format, _ := cmd.Flags().GetString("format")
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(format))

			return runInit(r, dir, force, postgres)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&postgres, "postgres", false, "Include a PostgreSQL publish target")

	return cmd
}

func defaultProjectFile(postgres bool) projectFile {
	pf := projectFile{
		DataDir:        config.DefaultDataDir,
		Backend:        merge.BackendMemory,
		Environment:    config.DefaultEnv,
		LogLevel:       config.DefaultLogLevel,
		StrictContract: true,
		Serve:          config.ServeConfig{Port: config.DefaultServePort, Watch: true},
	}
	if postgres {
		pf.Publish = &projectPublish{
			Host:     "localhost",
			Port:     config.DefaultPostgresPort,
			Database: "logistics",
			User:     "shipmerge",
			Password: "${PGPASSWORD}",
			Table:    config.DefaultPublishTable,
		}
		pf.Environments = map[string]projectEnvCfg{
			"prod": {DataDir: "exports"},
		}
	}
	return pf
}

func renderProjectFile(pf projectFile) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# shipmerge configuration\n")
	buf.WriteString("# Settings can be overridden with SHIPMERGE_* environment variables and flags.\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(pf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func runInit(r *output.Renderer, dir string, force, postgres bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, configFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configFileName)
	}

	content, err := renderProjectFile(defaultProjectFile(postgres))
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configFileName, err)
	}

	r.StatusLine(configFileName, "success", "")
	r.Println("")

	var missing []string
	for _, def := range source.Catalog() {
		if _, err := os.Stat(filepath.Join(dir, def.File)); err != nil {
			missing = append(missing, def.File)
		}
	}

	r.Success("shipmerge project initialized!")
	r.Println("")
	if len(missing) > 0 {
		r.Println("Add the source files to the project directory:")
		for _, f := range missing {
			r.Println("  " + f)
		}
		r.Println("")
	}
	r.Println("Next steps:")
	r.Println("  shipmerge sources   Check the source files")
	r.Println("  shipmerge merge     Build merged_master_dataset.csv")
	r.Println("  shipmerge report    Show delivery KPIs")
	r.Println("  shipmerge serve     Serve the data API")

	return nil
}

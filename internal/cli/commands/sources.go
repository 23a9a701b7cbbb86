package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/spf13/cobra"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the source files with their columns and row counts",
		Long: `Inspect the seven source files in the data directory without merging.

Each file is reported with its row count, its columns and any join key
the merge requires but the file lacks. Missing files are listed rather
than treated as errors.`,
		Example: `  # Inspect the current directory
  shipmerge sources

  # Inspect another directory as JSON
  shipmerge sources --data-dir ./exports -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSources(cmd)
		},
	}

	return cmd
}

func runSources(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cc.Cfg.ValidateDataDir(); err != nil {
		return err
	}

	summaries := source.NewLoader(cc.Cfg.DataDir, cc.Logger).Describe()
	r := cc.Renderer

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(summaries)
	case output.ModeMarkdown:
		sourcesMarkdown(r, cc.Cfg.DataDir, summaries)
	default:
		sourcesText(r, cc.Cfg.DataDir, summaries)
	}

	if n := notReady(summaries); n > 0 {
		return fmt.Errorf("%d of %d sources are not ready to merge", n, len(summaries))
	}
	return nil
}

func notReady(summaries []source.Summary) int {
	n := 0
	for _, s := range summaries {
		if !s.Found || len(s.Missing) > 0 {
			n++
		}
	}
	return n
}

func sourcesText(r *output.Renderer, dir string, summaries []source.Summary) {
	r.Header(1, fmt.Sprintf("Sources in %s", dir))
	for _, s := range summaries {
		switch {
		case !s.Found:
			r.StatusLine(s.File, "failed", "(not found)")
		case len(s.Missing) > 0:
			r.StatusLine(s.File, "warning", fmt.Sprintf("(missing %s)", strings.Join(s.Missing, ", ")))
		default:
			r.StatusLine(s.File, "success", fmt.Sprintf("(%d rows, %d columns)", s.Rows, len(s.Columns)))
		}
	}
	r.Println("")

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		if !s.Found {
			continue
		}
		rows = append(rows, []string{string(s.Name), strconv.Itoa(s.Rows), strings.Join(s.Columns, ", ")})
	}
	if len(rows) > 0 {
		r.Table([]string{"Source", "Rows", "Columns"}, rows)
	}
}

func sourcesMarkdown(r *output.Renderer, dir string, summaries []source.Summary) {
	r.Header(1, fmt.Sprintf("Sources in %s", dir))

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		status := "ok"
		switch {
		case !s.Found:
			status = "not found"
		case len(s.Missing) > 0:
			status = "missing " + strings.Join(s.Missing, ", ")
		}
		rows = append(rows, []string{s.File, status, strconv.Itoa(s.Rows), strings.Join(s.Columns, ", ")})
	}
	r.Table([]string{"File", "Status", "Rows", "Columns"}, rows)
}

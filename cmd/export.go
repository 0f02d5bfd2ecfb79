package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrapekit/scrapper/internal/export"
)

var (
	exportFormat string
	exportOutput string
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <slug>",
		Short: "Exports a project's extracted records",
		Long: `Writes all records extracted for the named project to stdout or a file,
as JSON or CSV.`,
		Args: cobra.ExactArgs(1),

		RunE: runExportCommand,
	}
	cmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json or csv")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	return cmd
}

func runExportCommand(cmd *cobra.Command, args []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	slug := args[0]

	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	project, err := a.projects.GetProject(cmd.Context(), slug)
	if err != nil {
		return fmt.Errorf("load project %q: %w", slug, err)
	}

	total, err := a.results.CountRecords(cmd.Context(), project.ID)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	records, err := a.results.ListRecords(cmd.Context(), project.ID, total, 0)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	out := os.Stdout
	if exportOutput != "" {
		f, createErr := os.Create(exportOutput)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer f.Close()
		out = f
	}

	if err := export.Write(out, format, records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

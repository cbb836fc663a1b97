package commands

import (
	"os"

	"massar-backend/internal/scrapers/massar"

	"github.com/spf13/cobra"
)

var parseFormat string

func init() {
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", formatTable, "The output format: table, json or yaml.")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <report.html> [--format table|json|yaml]",
	Short: "Parses a saved report page without contacting the portal.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := validateFormat(parseFormat)
		if err != nil {
			return err
		}
		markup, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return renderReport(os.Stdout, parseFormat, massar.Parse(string(markup)))
	},
}

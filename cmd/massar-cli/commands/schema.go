package commands

import (
	"os"

	"massar-backend/internal/service"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Prints the json schema of the report returned by massar-server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := service.ReportSchema()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(schema, '\n'))
		return err
	},
}

package commands

import (
	"os"

	"massar-backend/internal/scrapers/massar"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	username string
	year     string
	session  string
	format   string
	db       string
}

func init() {
	flags := historyCmd.Flags()
	flags.StringVarP(&historyFlags.username, "username", "u", "", "The portal username.")
	flags.StringVarP(&historyFlags.year, "year", "y", "", "The academic year, ex. 2024/2025.")
	flags.StringVarP(&historyFlags.session, "session", "s", "1", "The semester: 1, 2 or 3 for the yearly average.")
	flags.StringVarP(&historyFlags.format, "format", "f", formatTable, "The output format: table, json or yaml.")
	flags.StringVar(&historyFlags.db, "db", "", "The snapshot database, defaults to the configured database.")
	historyCmd.MarkFlagRequired("username")
	historyCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history --username <username> --year <YYYY/YYYY> [--session <1|2|3>] [--db <path>]",
	Short: "Lists the recorded averages of an account, oldest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := validateFormat(historyFlags.format)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, closeDb, err := openStore(cmd, cfg, historyFlags.db)
		if err != nil {
			return err
		}
		defer closeDb()

		snapshots, err := store.GetSnapshots(cmd.Context(), historyFlags.username, massar.ReportQuery{
			AcademicYear: historyFlags.year,
			SessionId:    historyFlags.session,
		})
		if err != nil {
			return err
		}
		return renderSnapshots(os.Stdout, historyFlags.format, snapshots)
	},
}

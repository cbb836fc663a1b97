package commands

import (
	"errors"
	"fmt"
	"os"

	"massar-backend/internal/components/chrono"
	"massar-backend/internal/components/db"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/scrapers/massar"
	"massar-backend/internal/snapshot"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var fetchFlags struct {
	username string
	password string
	year     string
	session  string
	format   string
	db       string
}

func init() {
	flags := fetchCmd.Flags()
	flags.StringVarP(&fetchFlags.username, "username", "u", "", "The portal username, ex. G123456789@taalim.ma.")
	flags.StringVarP(&fetchFlags.password, "password", "p", "", "The portal password, prompted for when omitted.")
	flags.StringVarP(&fetchFlags.year, "year", "y", "", "The academic year, ex. 2024/2025.")
	flags.StringVarP(&fetchFlags.session, "session", "s", "1", "The semester: 1, 2 or 3 for the yearly average.")
	flags.StringVarP(&fetchFlags.format, "format", "f", formatTable, "The output format: table, json or yaml.")
	flags.StringVar(&fetchFlags.db, "db", "", "Record the report in this snapshot database.")
	fetchCmd.MarkFlagRequired("username")
	fetchCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(fetchCmd)
}

func promptPassword() (string, error) {
	prompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return errors.New("password cannot be empty")
			}
			return nil
		},
	}
	password, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("password prompt cancelled")
	}
	return password, nil
}

// describe turns pipeline errors into something the user can act on.
func describe(err error) error {
	kind, ok := massar.KindOf(err)
	if !ok {
		return err
	}
	switch kind {
	case massar.LoginRejected:
		return fmt.Errorf("incorrect username or password")
	case massar.NetworkError:
		return fmt.Errorf("the portal could not be reached, try again later: %w", err)
	}
	return fmt.Errorf("the portal returned something unexpected (%s): %w", kind, err)
}

// openStore opens the snapshot database at path, falling back to the
// configured database when path is empty.
func openStore(cmd *cobra.Command, cfg Config, path string) (snapshot.Store, func() error, error) {
	dbConfig := cfg.Database
	if path != "" {
		dbConfig = db.Config{File: path}
	}
	if !dbConfig.Enabled() {
		return snapshot.Store{}, nil, fmt.Errorf("no snapshot database specified, use --db or set database in %s", configPath)
	}
	database, err := db.Open(cmd.Context(), dbConfig, snapshot.Schema)
	if err != nil {
		return snapshot.Store{}, nil, fmt.Errorf("open database: %w", err)
	}
	store := snapshot.NewStore(
		database,
		db.NewMakeTx(database),
		chrono.NewStandardTime(),
		telemetry.SlogAPI{},
	)
	return store, database.Close, nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch --username <username> --year <YYYY/YYYY> [--session <1|2|3>] [--format table|json|yaml] [--db <path>]",
	Short: "Logs into the portal and prints a report card.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := validateFormat(fetchFlags.format)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		password := fetchFlags.password
		if password == "" {
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		report, err := client.GetGradeReport(
			cmd.Context(),
			fetchFlags.username,
			password,
			fetchFlags.year,
			fetchFlags.session,
		)
		if err != nil {
			return describe(err)
		}

		if fetchFlags.db != "" || cfg.Database.Enabled() {
			store, closeDb, err := openStore(cmd, cfg, fetchFlags.db)
			if err != nil {
				return err
			}
			defer closeDb()
			err = store.MakeSnapshot(cmd.Context(), fetchFlags.username, massar.ReportQuery{
				AcademicYear: fetchFlags.year,
				SessionId:    fetchFlags.session,
			}, report)
			if err != nil {
				return fmt.Errorf("record snapshot: %w", err)
			}
		}

		return renderReport(os.Stdout, fetchFlags.format, report)
	},
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"massar-backend/internal/components/configutil"
	"massar-backend/internal/components/db"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/notify"
	"massar-backend/internal/scrapers/massar"

	"github.com/spf13/cobra"
)

// WatchedAccount is an account that `watch` checks on a schedule.
type WatchedAccount struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Email receives a message whenever the account's averages change.
	Email    string `json:"email"`
	Year     string `json:"year"`
	Semester string `json:"semester"`
}

type Config struct {
	Massar   massar.Config     `json:"massar"`
	Database db.Config         `json:"database"`
	Smtp     notify.SmtpConfig `json:"smtp"`
	Accounts []WatchedAccount  `json:"accounts"`
}

var (
	verbose    bool
	configPath string
	providers  telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:          "massar-cli",
	Short:        "massar-cli fetches and inspects report cards from the Massar portal.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		t, err := telemetry.SetupFromEnv(cmd.Context(), "massar-cli")
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		providers = t
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return providers.Shutdown(context.Background())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "massar.json5", "The path to the configuration file.")
}

// loadConfig reads the configuration file, a missing file is an empty
// configuration.
func loadConfig() (Config, error) {
	cfg, err := configutil.ReadConfigWithDefaults(configPath, Config{})
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	slog.Debug("loaded config", "path", configPath, "accounts", len(cfg.Accounts))
	return cfg, nil
}

func newClient(cfg Config) (massar.Client, error) {
	opts, err := cfg.Massar.Options(telemetry.SlogAPI{})
	if err != nil {
		return massar.Client{}, err
	}
	if verbose && opts.Output == nil {
		output, err := telemetry.NewFilesystemOutput(".dev/resty/massar")
		if err != nil {
			return massar.Client{}, err
		}
		opts.Output = output
	}
	return massar.NewClient(opts)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"massar-backend/internal/components/chrono"
	"massar-backend/internal/components/serviceutil"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/notify"
	"massar-backend/internal/scrapers/massar"
	"massar-backend/internal/snapshot"

	"github.com/spf13/cobra"
)

const report_watch_check = "watch.check"

type gradesAPI interface {
	GetGradeReport(ctx context.Context, username, password, academicYear, sessionId string) (massar.GradeReport, error)
}

type snapshotAPI interface {
	Latest(ctx context.Context, username string, query massar.ReportQuery) (snapshot.Snapshot, bool, error)
	MakeSnapshot(ctx context.Context, username string, query massar.ReportQuery, report massar.GradeReport) error
}

type notifyAPI interface {
	NotifyChanges(ctx context.Context, to string, query massar.ReportQuery, changes []notify.Change) error
}

type watcher struct {
	grades    gradesAPI
	snapshots snapshotAPI
	// mailer is nil when smtp is not configured
	mailer notifyAPI
	tel    telemetry.API
}

// check fetches an account's report, records it and emails the account
// holder if its averages changed since the last snapshot.
func (w watcher) check(ctx context.Context, account WatchedAccount) error {
	query := massar.ReportQuery{AcademicYear: account.Year, SessionId: account.Semester}

	report, err := w.grades.GetGradeReport(ctx, account.Username, account.Password, account.Year, account.Semester)
	if err != nil {
		return err
	}

	previous, hasPrevious, err := w.snapshots.Latest(ctx, account.Username, query)
	if err != nil {
		return fmt.Errorf("get latest snapshot: %w", err)
	}
	err = w.snapshots.MakeSnapshot(ctx, account.Username, query, report)
	if err != nil {
		return fmt.Errorf("make snapshot: %w", err)
	}

	if !hasPrevious || w.mailer == nil || account.Email == "" {
		return nil
	}
	changes := notify.Changed(previous.Report, report)
	if len(changes) == 0 {
		return nil
	}
	w.tel.ReportDebug("averages changed", len(changes))
	return w.mailer.NotifyChanges(ctx, account.Email, query, changes)
}

// checkAll checks every account one after the other, a failing account does
// not stop the others.
func (w watcher) checkAll(ctx context.Context, accounts []WatchedAccount) (failed int) {
	for i, account := range accounts {
		err := w.check(ctx, account)
		if err != nil {
			failed++
			w.tel.ReportWarning(report_watch_check, err, telemetry.KV{Key: "account", Value: i})
		}
	}
	w.tel.ReportCount(report_watch_check, int64(len(accounts)-failed))
	return failed
}

var watchFlags struct {
	cron string
	now  bool
}

func init() {
	watchCmd.Flags().StringVar(&watchFlags.cron, "cron", "0 7,19 * * *", "When to check the accounts, in Africa/Casablanca time.")
	watchCmd.Flags().BoolVar(&watchFlags.now, "now", false, "Also check the accounts once on start.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--cron <spec>] [--now]",
	Short: "Checks the configured accounts on a schedule and emails changed averages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Accounts) == 0 {
			return fmt.Errorf("no accounts to watch, add some under accounts in %s", configPath)
		}

		ctx := serviceutil.SignalContext()
		tel := telemetry.NewScopedAPI("massar-cli", telemetry.SlogAPI{})

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		store, closeDb, err := openStore(cmd, cfg, "")
		if err != nil {
			return err
		}
		defer closeDb()

		w := watcher{grades: client, snapshots: store, tel: tel}
		if cfg.Smtp.Enabled() {
			w.mailer = notify.NewMailer(cfg.Smtp, tel)
		} else {
			slog.Info("smtp is not configured, changes will not be emailed")
		}

		if watchFlags.now {
			w.checkAll(ctx, cfg.Accounts)
		}

		cron := chrono.NewStandardCron(tel)
		err = cron.Cron(watchFlags.cron, func() {
			w.checkAll(ctx, cfg.Accounts)
		})
		if err != nil {
			cron.Stop()
			return fmt.Errorf("invalid cron spec: %w", err)
		}
		slog.Info("watching accounts", "count", len(cfg.Accounts), "cron", watchFlags.cron)

		<-ctx.Done()
		cron.Stop()
		return nil
	},
}

package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"massar-backend/internal/components/assert"
	"massar-backend/internal/components/chrono"
	"massar-backend/internal/components/db"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/scrapers/massar"
)

//go:embed schema.sql
var Schema string

const (
	report_db_query      = "db.query"
	report_make_snapshot = "snapshot.make-snapshot"
	report_get_snapshots = "snapshot.get-snapshots"
)

// Snapshot is the report of one account, year and semester as it was on a
// given day.
type Snapshot struct {
	Day            time.Time          `json:"day" yaml:"day"`
	TakenAt        time.Time          `json:"takenAt" yaml:"takenAt"`
	SessionAverage *string            `json:"sessionAverage,omitempty" yaml:"sessionAverage,omitempty"`
	ExamAverage    *string            `json:"examAverage,omitempty" yaml:"examAverage,omitempty"`
	Report         massar.GradeReport `json:"report" yaml:"report"`
}

// AccountKey identifies an account in the database without storing its
// username.
func AccountKey(username string) string {
	sum := sha256.Sum256([]byte(username))
	return hex.EncodeToString(sum[:])
}

type Store struct {
	db     *sql.DB
	makeTx db.MakeTx
	time   chrono.TimeAPI
	tel    telemetry.API
}

func NewStore(
	database *sql.DB,
	makeTx db.MakeTx,
	time chrono.TimeAPI,
	tel telemetry.API,
) Store {
	assert.NotNil(database)
	assert.NotNil(makeTx)
	assert.NotNil(time)
	assert.NotNil(tel)

	return Store{
		db:     database,
		makeTx: makeTx,
		time:   time,
		tel:    telemetry.NewScopedAPI("snapshot", tel),
	}
}

func nullable(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func fromNullable(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

// MakeSnapshot records the report, there is at most one snapshot per day
// for a given account, year and semester so a snapshot made on the same day
// replaces the earlier one.
func (s Store) MakeSnapshot(ctx context.Context, username string, query massar.ReportQuery, report massar.GradeReport) error {
	now := s.time.Now()
	startOfToday := chrono.StartOfDay(now)
	account := AccountKey(username)
	year := query.Year()

	encoded, err := json.Marshal(report)
	if err != nil {
		s.tel.ReportBroken(report_make_snapshot, fmt.Errorf("encode report: %w", err))
		return err
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return err
	}
	defer discard()

	var latestDay int64
	err = tx.QueryRowContext(
		ctx,
		`select day from report_snapshot
		where account = ? and academic_year = ? and session_id = ?
		order by day desc limit 1`,
		account, year, query.SessionId,
	).Scan(&latestDay)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.tel.ReportBroken(report_db_query, err, "GetLatestSnapshotDay", year, query.SessionId)
		return err
	}
	if err == nil && startOfToday.Unix() < latestDay {
		err := fmt.Errorf("current date is before the most recent snapshot")
		s.tel.ReportBroken(
			report_make_snapshot,
			err,
			now.Format(time.DateTime),
			time.Unix(latestDay, 0).In(chrono.Casablanca()).Format(time.DateOnly),
		)
		return err
	}

	s.tel.ReportDebug(
		"make snapshot",
		year,
		query.SessionId,
		telemetry.KV{Key: "day", Value: startOfToday.Format(time.DateOnly)},
	)

	_, err = tx.ExecContext(
		ctx,
		`insert into report_snapshot(
			account, academic_year, session_id, day, taken_at,
			session_average, exam_average, report
		) values (?, ?, ?, ?, ?, ?, ?, ?)
		on conflict (account, academic_year, session_id, day) do update set
			taken_at = excluded.taken_at,
			session_average = excluded.session_average,
			exam_average = excluded.exam_average,
			report = excluded.report`,
		account, year, query.SessionId, startOfToday.Unix(), now.Unix(),
		nullable(report.SessionAverage), nullable(report.ExamAverage), string(encoded),
	)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "UpsertSnapshot", year, query.SessionId)
		return err
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return err
	}
	return nil
}

const selectSnapshots = `select day, taken_at, session_average, exam_average, report
	from report_snapshot
	where account = ? and academic_year = ? and session_id = ?`

func (s Store) scan(rows interface{ Scan(...any) error }) (Snapshot, error) {
	var day, takenAt int64
	var sessionAverage, examAverage sql.NullString
	var encoded string
	err := rows.Scan(&day, &takenAt, &sessionAverage, &examAverage, &encoded)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Day:            time.Unix(day, 0).In(chrono.Casablanca()),
		TakenAt:        time.Unix(takenAt, 0).In(chrono.Casablanca()),
		SessionAverage: fromNullable(sessionAverage),
		ExamAverage:    fromNullable(examAverage),
	}
	err = json.Unmarshal([]byte(encoded), &snapshot.Report)
	if err != nil {
		s.tel.ReportBroken(report_get_snapshots, fmt.Errorf("decode report: %w", err), day)
		return Snapshot{}, err
	}
	return snapshot, nil
}

// GetSnapshots returns every snapshot of an account's report, oldest first.
func (s Store) GetSnapshots(ctx context.Context, username string, query massar.ReportQuery) ([]Snapshot, error) {
	year := query.Year()
	rows, err := s.db.QueryContext(
		ctx,
		selectSnapshots+" order by day asc",
		AccountKey(username), year, query.SessionId,
	)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetSnapshots", year, query.SessionId)
		return nil, err
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		snapshot, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	err = rows.Err()
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetSnapshots", year, query.SessionId)
		return nil, err
	}
	return snapshots, nil
}

// Latest returns the most recent snapshot, ok is false if there is none.
func (s Store) Latest(ctx context.Context, username string, query massar.ReportQuery) (snapshot Snapshot, ok bool, err error) {
	year := query.Year()
	row := s.db.QueryRowContext(
		ctx,
		selectSnapshots+" order by day desc limit 1",
		AccountKey(username), year, query.SessionId,
	)
	snapshot, err = s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetLatestSnapshot", year, query.SessionId)
		return Snapshot{}, false, err
	}
	return snapshot, true, nil
}

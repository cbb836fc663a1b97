package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"massar-backend/internal/linker"
	"massar-backend/internal/scrapers/massar"
	"massar-backend/internal/snapshot"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJson  = "json"
	formatYaml  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJson, formatYaml:
		return nil
	}
	return fmt.Errorf("unknown format %q, expected one of table, json, yaml", format)
}

// writeStructured writes value as json or yaml, ok is false for the table
// format.
func writeStructured(w io.Writer, format string, value any) (ok bool, err error) {
	switch format {
	case formatJson:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(value)
	case formatYaml:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		err := encoder.Encode(value)
		if err != nil {
			return true, err
		}
		return true, encoder.Close()
	}
	return false, nil
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(title)
	return t
}

func optional(value *string) string {
	if value == nil {
		return "-"
	}
	return *value
}

func renderReport(w io.Writer, format string, report massar.GradeReport) error {
	ok, err := writeStructured(w, format, report)
	if ok {
		return err
	}

	summary := newTable(w, "Summary")
	summary.AppendRows([]table.Row{
		{"Institution", report.Summary.Institution},
		{"Level", report.Summary.Level},
		{"Class", report.Summary.ClassName},
		{"Students", report.Summary.StudentCount},
		{"Session average", optional(report.SessionAverage)},
		{"Exam average", optional(report.ExamAverage)},
	})
	summary.Render()

	scoreColumns := 0
	for _, row := range report.ContinuousAssessmentRows {
		scoreColumns = max(scoreColumns, len(row.Scores))
	}
	cc := newTable(w, "Continuous assessment")
	header := table.Row{"Subject"}
	for i := range scoreColumns {
		header = append(header, fmt.Sprintf("CC %d", i+1))
	}
	cc.AppendHeader(header)
	for _, row := range report.ContinuousAssessmentRows {
		cells := table.Row{row.Subject}
		for i := range scoreColumns {
			if i < len(row.Scores) {
				cells = append(cells, row.Scores[i])
				continue
			}
			cells = append(cells, "")
		}
		cc.AppendRow(cells)
	}
	cc.Render()

	exams := newTable(w, "Exams")
	exams.AppendHeader(table.Row{"Subject", "CC average", "Coefficient", "Max", "Average", "Min", "Exam"})
	for _, row := range report.ExamRows {
		exams.AppendRow(table.Row{
			row.Subject,
			row.CCAverage,
			row.Coefficient,
			row.ClassMax,
			row.ClassAverage,
			row.ClassMin,
			row.ExamScore,
		})
	}
	exams.Render()

	linked := newTable(w, "Subjects")
	linked.AppendHeader(table.Row{"Subject", "CC scores", "CC average", "Coefficient", "Exam"})
	for _, link := range linker.LinkSubjects(report) {
		var scores, ccAverage, coefficient, exam string
		if link.ContinuousAssessment != nil {
			scores = strings.Join(link.ContinuousAssessment.Scores, " ")
		}
		if link.Exam != nil {
			ccAverage = link.Exam.CCAverage
			coefficient = link.Exam.Coefficient
			exam = link.Exam.ExamScore
		}
		linked.AppendRow(table.Row{link.Subject, scores, ccAverage, coefficient, exam})
	}
	linked.Render()

	if report.Degraded() {
		fmt.Fprintf(w, "warning: could not find %s\n", strings.Join(report.MissingSections(), ", "))
	}
	return nil
}

func renderSnapshots(w io.Writer, format string, snapshots []snapshot.Snapshot) error {
	ok, err := writeStructured(w, format, snapshots)
	if ok {
		return err
	}

	t := newTable(w, "History")
	t.AppendHeader(table.Row{"Day", "Session average", "Exam average", "Taken at"})
	for _, s := range snapshots {
		t.AppendRow(table.Row{
			s.Day.Format(time.DateOnly),
			optional(s.SessionAverage),
			optional(s.ExamAverage),
			s.TakenAt.Format(time.DateTime),
		})
	}
	t.Render()
	return nil
}

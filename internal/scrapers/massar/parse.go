package massar

import (
	"strings"

	"massar-backend/pkg/htmlutil"
)

const (
	continuousAssessmentContainer = "tab_cc"
	examContainer                 = "tab_notes_exam"

	examRowCells = 7

	sessionAverageLabel = "Moyenne session"
	examAverageLabel    = "Note examen"
)

// Parse turns the markup of a report page into a GradeReport. It never fails,
// parts of the page that cannot be found are left empty (see
// GradeReport.MissingSections).
func Parse(markup string) GradeReport {
	root, err := htmlutil.Parse(markup)
	if err != nil {
		return GradeReport{
			ContinuousAssessmentRows: []ContinuousAssessmentRow{},
			ExamRows:                 []ExamRow{},
		}
	}
	return ParseDocument(root)
}

// ParseDocument is Parse over an already parsed document.
func ParseDocument(root htmlutil.Node) GradeReport {
	report := GradeReport{
		Summary:                  parseSummary(root),
		ContinuousAssessmentRows: parseContinuousAssessment(root),
		ExamRows:                 parseExamRows(root),
	}
	report.SessionAverage, report.ExamAverage = parseAverages(root)
	return report
}

func insideList(n htmlutil.Node) bool {
	for {
		parent, ok := n.Parent()
		if !ok {
			return false
		}
		if parent.Tag() == "dl" {
			return true
		}
		n = parent
	}
}

func listItems(root htmlutil.Node, tag string) []htmlutil.Node {
	var items []htmlutil.Node
	for _, n := range root.Descendants(tag) {
		if insideList(n) {
			items = append(items, n)
		}
	}
	return items
}

// parseSummary pairs every <dt> with the <dd> of the same index, label
// matching is case and accent sensitive and the first match of a field wins.
func parseSummary(root htmlutil.Node) Summary {
	var summary Summary
	fields := []struct {
		label string
		value *string
	}{
		{"Etablissement", &summary.Institution},
		{"Niveau", &summary.Level},
		{"Classe", &summary.ClassName},
		{"Nombre éléves", &summary.StudentCount},
	}
	matched := make([]bool, len(fields))

	terms := listItems(root, "dt")
	descriptions := listItems(root, "dd")
	for i, term := range terms {
		label := htmlutil.TrimmedText(term)
		var value string
		if i < len(descriptions) {
			value = htmlutil.TrimmedText(descriptions[i])
		}

		for f, field := range fields {
			if matched[f] || !strings.Contains(label, field.label) {
				continue
			}
			*field.value = value
			matched[f] = true
		}
	}

	return summary
}

// tableRows returns the body rows of every table inside the element with the
// given id.
func tableRows(root htmlutil.Node, containerId string) []htmlutil.Node {
	container, ok := root.ByID(containerId)
	if !ok {
		return nil
	}
	var rows []htmlutil.Node
	for _, table := range container.Descendants("table") {
		for _, body := range table.Children("tbody") {
			rows = append(rows, body.Children("tr")...)
		}
	}
	return rows
}

func cellTexts(row htmlutil.Node) []string {
	cells := row.Descendants("td")
	texts := make([]string, len(cells))
	for i, cell := range cells {
		texts[i] = htmlutil.TrimmedText(cell)
	}
	return texts
}

func parseContinuousAssessment(root htmlutil.Node) []ContinuousAssessmentRow {
	rows := []ContinuousAssessmentRow{}
	for _, tr := range tableRows(root, continuousAssessmentContainer) {
		cells := cellTexts(tr)
		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		rows = append(rows, ContinuousAssessmentRow{
			Subject: cells[0],
			Scores:  cells[1:],
		})
	}
	return rows
}

// parseExamRows maps cells by position, the column order of the portal's exam
// table is relied upon.
func parseExamRows(root htmlutil.Node) []ExamRow {
	rows := []ExamRow{}
	for _, tr := range tableRows(root, examContainer) {
		cells := cellTexts(tr)
		if len(cells) < examRowCells {
			continue
		}
		rows = append(rows, ExamRow{
			Subject:      cells[0],
			CCAverage:    cells[1],
			Coefficient:  cells[2],
			ClassMax:     cells[3],
			ClassAverage: cells[4],
			ClassMin:     cells[5],
			ExamScore:    cells[6],
		})
	}
	return rows
}

// adjacentValue is the text of the <span> right after a label, or "" when the
// next element is something else.
func adjacentValue(label htmlutil.Node) string {
	next, ok := label.Next()
	if !ok || next.Tag() != "span" {
		return ""
	}
	return htmlutil.TrimmedText(next)
}

// parseAverages searches the labels around the exam table. If several labels
// match, the first one in document order wins.
func parseAverages(root htmlutil.Node) (sessionAverage, examAverage *string) {
	container, ok := root.ByID(examContainer)
	if !ok {
		return nil, nil
	}
	scope, ok := container.Parent()
	if !ok {
		return nil, nil
	}

	for _, label := range scope.Descendants("label") {
		text := htmlutil.TrimmedText(label)
		if sessionAverage == nil && strings.Contains(text, sessionAverageLabel) {
			value := adjacentValue(label)
			sessionAverage = &value
		}
		if examAverage == nil && strings.Contains(text, examAverageLabel) {
			value := adjacentValue(label)
			examAverage = &value
		}
	}
	return sessionAverage, examAverage
}

package massar

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Credentials are the login of a parent or student account on the portal.
// They are never logged, String and LogValue leave the password out.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q}", c.Username)
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", c.Username))
}

// ReportQuery selects which report card is requested.
type ReportQuery struct {
	// AcademicYear is formatted as "YYYY/YYYY", ex. "2024/2025".
	AcademicYear string
	// SessionId is the portal's semester identifier, "1" and "2" are the
	// semesters and "3" is the yearly average.
	SessionId string
}

var fourDigitYear = regexp.MustCompile(`^\d{4}$`)

// Year returns the value transmitted as `Annee`: the first 4-digit component
// of AcademicYear, or the part before the first "/" if there is none.
func (q ReportQuery) Year() string {
	parts := strings.Split(q.AcademicYear, "/")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if fourDigitYear.MatchString(part) {
			return part
		}
	}
	return strings.TrimSpace(parts[0])
}

type Summary struct {
	Institution  string `json:"institution" yaml:"institution"`
	Level        string `json:"level" yaml:"level"`
	ClassName    string `json:"className" yaml:"className"`
	StudentCount string `json:"studentCount" yaml:"studentCount"`
}

// ContinuousAssessmentRow holds the in-term scores of one subject, in column
// order. Scores is never padded to a fixed column count.
type ContinuousAssessmentRow struct {
	Subject string   `json:"subject" yaml:"subject"`
	Scores  []string `json:"scores" yaml:"scores"`
}

// ExamRow is one row of the exam table, every value is kept as displayed by
// the portal (ex. "15,5").
type ExamRow struct {
	Subject      string `json:"subject" yaml:"subject"`
	CCAverage    string `json:"ccAverage" yaml:"ccAverage"`
	Coefficient  string `json:"coefficient" yaml:"coefficient"`
	ClassMax     string `json:"classMax" yaml:"classMax"`
	ClassAverage string `json:"classAverage" yaml:"classAverage"`
	ClassMin     string `json:"classMin" yaml:"classMin"`
	ExamScore    string `json:"examScore" yaml:"examScore"`
}

// GradeReport is the parsed report card. It is a value, consumers should treat
// it as immutable.
type GradeReport struct {
	Summary                  Summary                   `json:"summary" yaml:"summary"`
	ContinuousAssessmentRows []ContinuousAssessmentRow `json:"continuousAssessmentRows" yaml:"continuousAssessmentRows"`
	ExamRows                 []ExamRow                 `json:"examRows" yaml:"examRows"`
	// SessionAverage is nil when the page has no "Moyenne session" field.
	SessionAverage *string `json:"sessionAverage,omitempty" yaml:"sessionAverage,omitempty"`
	// ExamAverage is nil when the page has no "Note examen" field.
	ExamAverage *string `json:"examAverage,omitempty" yaml:"examAverage,omitempty"`
}

// MissingSections lists the parts of the report the parser could not find.
func (r GradeReport) MissingSections() []string {
	var missing []string
	summaryFields := []struct {
		name  string
		value string
	}{
		{"summary.institution", r.Summary.Institution},
		{"summary.level", r.Summary.Level},
		{"summary.className", r.Summary.ClassName},
		{"summary.studentCount", r.Summary.StudentCount},
	}
	for _, field := range summaryFields {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(r.ContinuousAssessmentRows) == 0 {
		missing = append(missing, "continuousAssessmentRows")
	}
	if len(r.ExamRows) == 0 {
		missing = append(missing, "examRows")
	}
	if r.SessionAverage == nil {
		missing = append(missing, "sessionAverage")
	}
	if r.ExamAverage == nil {
		missing = append(missing, "examAverage")
	}
	return missing
}

// Degraded reports whether some part of the report could not be found, this
// is not an error, the rest of the report is still valid.
func (r GradeReport) Degraded() bool {
	return len(r.MissingSections()) > 0
}

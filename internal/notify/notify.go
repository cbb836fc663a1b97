// Package notify emails account holders when their averages change.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"massar-backend/internal/components/assert"
	"massar-backend/internal/components/telemetry"
	"massar-backend/internal/scrapers/massar"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const report_mailer_send = "mailer.send"

var tracer = otel.Tracer("notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// Enabled reports whether an smtp server was configured.
func (c SmtpConfig) Enabled() bool {
	return c.Server != ""
}

// Change is the old and new value of one of a report's averages, a nil value
// means the average was not present.
type Change struct {
	Field    string
	Previous *string
	Current  *string
}

func display(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	return *value
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %s -> %s", c.Field, display(c.Previous), display(c.Current))
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Changed compares the averages of two reports of the same semester.
func Changed(previous, current massar.GradeReport) []Change {
	var changes []Change
	if !equal(previous.SessionAverage, current.SessionAverage) {
		changes = append(changes, Change{
			Field:    "Session average",
			Previous: previous.SessionAverage,
			Current:  current.SessionAverage,
		})
	}
	if !equal(previous.ExamAverage, current.ExamAverage) {
		changes = append(changes, Change{
			Field:    "Exam average",
			Previous: previous.ExamAverage,
			Current:  current.ExamAverage,
		})
	}
	return changes
}

type Mailer struct {
	config SmtpConfig
	tel    telemetry.API
}

func NewMailer(config SmtpConfig, tel telemetry.API) Mailer {
	assert.NotEmptyStr(config.Server, "smtp server")
	assert.NotNil(tel)
	return Mailer{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
}

func formatBody(query massar.ReportQuery, changes []Change) string {
	var body strings.Builder
	fmt.Fprintf(
		&body,
		"Your report card for %s, semester %s has been updated.\n\n",
		query.AcademicYear,
		query.SessionId,
	)
	for _, change := range changes {
		body.WriteString(change.String())
		body.WriteString("\n")
	}
	return body.String()
}

// NotifyChanges sends one email listing every change, nothing is sent if
// there are no changes.
func (m Mailer) NotifyChanges(ctx context.Context, to string, query massar.ReportQuery, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	_, span := tracer.Start(ctx, "Mailer:NotifyChanges")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Massar Grades <%s>", m.config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = "Your averages have changed"
	mail.Text = []byte(formatBody(query, changes))

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		m.tel.ReportBroken(report_mailer_send, err, addr)
		return err
	}

	m.tel.ReportDebug("sent change notification", len(changes))
	return nil
}

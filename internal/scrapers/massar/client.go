package massar

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"massar-backend/internal/components/assert"
	"massar-backend/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const (
	report_client_authenticate     = "client.authenticate"
	report_client_set_culture      = "client.set-culture"
	report_client_fetch_report     = "client.fetch-report"
	report_client_get_grade_report = "client.get-grade-report"
)

const (
	DefaultBaseUrl           = "https://massarservice.men.gov.ma"
	DefaultTimeout           = 15 * time.Second
	DefaultRequestsPerSecond = 2

	userAgent = "Mozilla/5.0"
	formType  = "application/x-www-form-urlencoded"

	accountPath    = "/moutamadris/Account"
	setCulturePath = "/moutamadris/General/SetCulture?culture=en"
	bulletinsPath  = "/moutamadris/TuteurEleves/GetBulletins"
	notesPagePath  = "/moutamadris/TuteurEleves/GetNotesEleve"

	tokenField = "__RequestVerificationToken"

	// only the post-login account page links to the password change form
	loggedInMarker = "ChangePassword"
	// the class roster heading of a genuine report page
	reportMarker = "Classe"
)

var tracer = otel.Tracer("scrapers/massar")
var meter = otel.Meter("scrapers/massar")
var pipelineCounter, _ = meter.Int64Counter(
	"massar.grade_reports",
	metric.WithDescription("Grade report requests by outcome."),
)

// isLoggedIn reports whether a login response is the account page. The portal
// answers 200 whether or not the credentials were accepted.
func isLoggedIn(body string) bool {
	return strings.Contains(body, loggedInMarker)
}

// isReportPage reports whether a report response is an actual report card.
func isReportPage(body string) bool {
	return strings.Contains(body, reportMarker)
}

type Options struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Timeout bounds every request, defaults to DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond is the rate limit of a single session, defaults to
	// DefaultRequestsPerSecond, a negative value disables it.
	RequestsPerSecond float64
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
	// Output optionally receives a dump of every http exchange.
	Output telemetry.InstrumentOutput
}

// Client creates sessions against the portal. It holds no cookies or tokens
// itself, so one Client can be used by any number of concurrent callers.
type Client struct {
	baseUrl *url.URL
	origin  string
	timeout time.Duration
	rps     float64
	tel     telemetry.API
	output  telemetry.InstrumentOutput
}

func NewClient(opts Options) (Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}

	baseUrl, err := url.Parse(strings.TrimSuffix(opts.BaseUrl, "/"))
	if err != nil {
		return Client{}, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return Client{}, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	return Client{
		baseUrl: baseUrl,
		origin:  fmt.Sprintf("%s://%s", baseUrl.Scheme, baseUrl.Host),
		timeout: opts.Timeout,
		rps:     opts.RequestsPerSecond,
		tel:     telemetry.NewScopedAPI("massar", opts.Telemetry),
		output:  opts.Output,
	}, nil
}

// Session is the cookie and token state of one login. It must not be reused
// across operations or shared between goroutines.
type Session struct {
	http   *resty.Client
	client Client
	token  string
}

func (c Client) newSession() (*Session, error) {
	assert.NotNil(c.baseUrl, "massar client base url")

	httpClient := resty.New()
	httpClient.SetBaseURL(c.baseUrl.String())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("User-Agent", userAgent)
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(c.baseUrl.Hostname()),
	)
	httpClient.SetTimeout(c.timeout)

	if c.rps > 0 {
		// max burst >= 2 just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(c.rps), 2)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, "scrapers/massar/http", c.tel, c.output)

	return &Session{http: httpClient, client: c}, nil
}

// encodeForm url encodes fields in the given order, the portal's forms are
// submitted in the order a browser would.
func encodeForm(fields ...[2]string) string {
	pairs := make([]string, len(fields))
	for i, f := range fields {
		pairs[i] = url.QueryEscape(f[0]) + "=" + url.QueryEscape(f[1])
	}
	return strings.Join(pairs, "&")
}

func (c Client) endpoint(path string) string {
	return c.baseUrl.String() + path
}

// Authenticate logs into the portal with a fresh Session.
func (c Client) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	ctx, span := tracer.Start(ctx, "client:Authenticate")
	defer span.End()

	var s *Session
	fail := func(kind ErrorKind, err error) (*Session, error) {
		if s != nil {
			s.Close()
		}
		span.SetStatus(codes.Error, kind.String())
		return nil, &AuthError{Kind: kind, Err: err}
	}

	s, err := c.newSession()
	if err != nil {
		c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("create session: %w", err))
		return fail(NetworkError, err)
	}

	res, err := s.http.R().
		SetContext(ctx).
		Get(accountPath)
	if err != nil {
		c.tel.ReportWarning(report_client_authenticate, fmt.Errorf("login page request: %w", err))
		return fail(NetworkError, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		c.tel.ReportBroken(report_client_authenticate, fmt.Errorf("parse login page: %w", err))
		return fail(TokenMissing, err)
	}

	token := strings.TrimSpace(doc.Find(fmt.Sprintf(`input[name="%s"]`, tokenField)).First().AttrOr("value", ""))
	if token == "" {
		c.tel.ReportBroken(
			report_client_authenticate,
			fmt.Errorf("could not find %s", tokenField),
			res.StatusCode(),
		)
		return fail(TokenMissing, nil)
	}
	s.token = token

	res, err = s.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Content-Type": formType,
			"Referer":      c.endpoint(accountPath),
			"Origin":       c.origin,
			"User-Agent":   userAgent,
		}).
		SetBody(encodeForm(
			[2]string{"UserName", creds.Username},
			[2]string{"Password", creds.Password},
			[2]string{tokenField, token},
		)).
		Post(accountPath)
	if err != nil {
		c.tel.ReportWarning(report_client_authenticate, fmt.Errorf("login request: %w", err))
		return fail(NetworkError, err)
	}
	if !isLoggedIn(string(res.Body())) {
		c.tel.ReportDebug("login rejected", res.StatusCode())
		return fail(LoginRejected, nil)
	}

	s.setCulture(ctx)
	return s, nil
}

// setCulture switches the portal's labels to english. It is best-effort, the
// parser does not depend on label language for table positions.
func (s *Session) setCulture(ctx context.Context) {
	res, err := s.http.R().
		SetContext(ctx).
		Post(setCulturePath)
	if err != nil {
		s.client.tel.ReportWarning(report_client_set_culture, err)
		return
	}
	if res.IsError() {
		s.client.tel.ReportWarning(report_client_set_culture, res.Status())
	}
}

// FetchReportHtml requests the report card of a given year and semester.
func (s *Session) FetchReportHtml(ctx context.Context, query ReportQuery) (string, error) {
	ctx, span := tracer.Start(ctx, "session:FetchReportHtml")
	defer span.End()

	fail := func(kind ErrorKind, err error) (string, error) {
		span.SetStatus(codes.Error, kind.String())
		return "", &FetchError{Kind: kind, Err: err}
	}

	span.SetAttributes(
		attribute.String("annee", query.Year()),
		attribute.String("id_session", query.SessionId),
	)

	res, err := s.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"X-Requested-With": "XMLHttpRequest",
			"Content-Type":     formType,
			"Referer":          s.client.endpoint(notesPagePath),
			"Origin":           s.client.origin,
			"User-Agent":       userAgent,
		}).
		SetBody(encodeForm(
			[2]string{"Annee", query.Year()},
			[2]string{"IdSession", query.SessionId},
		)).
		Post(bulletinsPath)
	if err != nil {
		s.client.tel.ReportWarning(report_client_fetch_report, fmt.Errorf("fetch: %w", err))
		return fail(NetworkError, err)
	}

	body := string(res.Body())
	if strings.TrimSpace(body) == "" {
		s.client.tel.ReportWarning(report_client_fetch_report, "empty response", res.StatusCode())
		return fail(EmptyResponse, nil)
	}
	if !isReportPage(body) {
		s.client.tel.ReportWarning(report_client_fetch_report, "missing report marker", res.StatusCode())
		return fail(UnexpectedShape, nil)
	}
	return body, nil
}

// Close releases the session's connections, it cannot be used afterwards.
func (s *Session) Close() {
	s.token = ""
	s.http.GetClient().CloseIdleConnections()
}

// GetGradeReport runs the whole pipeline (authenticate, fetch, parse) on its
// own Session. The returned error carries an ErrorKind.
func (c Client) GetGradeReport(ctx context.Context, username, password, academicYear, sessionId string) (GradeReport, error) {
	ctx, span := tracer.Start(ctx, "client:GetGradeReport")
	defer span.End()

	record := func(outcome string) {
		pipelineCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	recordErr := func(err error) {
		kind, ok := KindOf(err)
		if !ok {
			record("unknown")
			return
		}
		record(kind.String())
	}

	session, err := c.Authenticate(ctx, Credentials{Username: username, Password: password})
	if err != nil {
		recordErr(err)
		return GradeReport{}, err
	}
	defer session.Close()

	markup, err := session.FetchReportHtml(ctx, ReportQuery{
		AcademicYear: academicYear,
		SessionId:    sessionId,
	})
	if err != nil {
		recordErr(err)
		return GradeReport{}, err
	}

	report := Parse(markup)
	if report.Degraded() {
		c.tel.ReportWarning(
			report_client_get_grade_report,
			"parse degraded",
			telemetry.KV{Key: "missing", Value: report.MissingSections()},
		)
		record("ParseDegraded")
	} else {
		record("ok")
	}
	return report, nil
}

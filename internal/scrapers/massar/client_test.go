package massar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"massar-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

const (
	testUsername = "G123456789"
	testPassword = "p@ss word&1"
	testToken    = "CfDJ8token"
	testCookie   = "massar-session"

	loginPage = `<form action="/moutamadris/Account" method="post">
		<input name="UserName" />
		<input name="Password" type="password" />
		<input name="__RequestVerificationToken" type="hidden" value="` + testToken + `" />
	</form>`
	accountPage = `<a href="/moutamadris/Account/ChangePassword">Changer le mot de passe</a>`
)

type capturedRequest struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

// fakePortal imitates the portal's endpoints, each field can be changed to
// simulate a failure.
type fakePortal struct {
	loginPage     string
	loginResponse string
	loginStatus   int
	cultureStatus int
	report        string
	reportDelay   time.Duration

	mutex    sync.Mutex
	requests []capturedRequest
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		loginPage:     loginPage,
		loginResponse: accountPage,
		loginStatus:   http.StatusOK,
		cultureStatus: http.StatusOK,
		report:        reportFixture,
	}
}

func (p *fakePortal) capture(r *http.Request) capturedRequest {
	body, _ := io.ReadAll(r.Body)
	captured := capturedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		header: r.Header.Clone(),
		body:   string(body),
	}
	p.mutex.Lock()
	p.requests = append(p.requests, captured)
	p.mutex.Unlock()
	return captured
}

func (p *fakePortal) posts() []capturedRequest {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []capturedRequest
	for _, r := range p.requests {
		if r.method == http.MethodPost {
			out = append(out, r)
		}
	}
	return out
}

func (p *fakePortal) find(path string) (capturedRequest, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, r := range p.requests {
		if r.path == path {
			return r, true
		}
	}
	return capturedRequest{}, false
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := p.capture(r)

	switch {
	case req.method == http.MethodGet && req.path == accountPath:
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: testCookie, Path: "/"})
		w.Write([]byte(p.loginPage))
	case req.method == http.MethodPost && req.path == accountPath:
		w.WriteHeader(p.loginStatus)
		w.Write([]byte(p.loginResponse))
	case req.method == http.MethodPost && req.path == "/moutamadris/General/SetCulture":
		w.WriteHeader(p.cultureStatus)
	case req.method == http.MethodPost && req.path == bulletinsPath:
		if p.reportDelay > 0 {
			select {
			case <-time.After(p.reportDelay):
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte(p.report))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t testing.TB, url string, tel telemetry.API) Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseUrl:           url,
		Timeout:           time.Second,
		RequestsPerSecond: -1,
		Telemetry:         tel,
	})
	require.NoError(t, err)
	return client
}

func setup(t *testing.T) (*fakePortal, Client, *telemetry.Recorder) {
	portal := newFakePortal()
	server := httptest.NewServer(portal)
	t.Cleanup(server.Close)
	rec := &telemetry.Recorder{}
	return portal, newTestClient(t, server.URL, rec), rec
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	actual, ok := KindOf(err)
	require.True(t, ok, "error has no kind: %v", err)
	require.Equal(t, kind, actual)
	require.ErrorIs(t, err, kind)
}

func TestAuthenticate(t *testing.T) {
	portal, client, _ := setup(t)

	session, err := client.Authenticate(context.Background(), Credentials{
		Username: testUsername,
		Password: testPassword,
	})
	require.NoError(t, err)
	defer session.Close()

	login, ok := portal.find(accountPath)
	require.True(t, ok)
	require.Equal(t, http.MethodGet, login.method)

	posts := portal.posts()
	require.Len(t, posts, 2)

	submit := posts[0]
	require.Equal(t, accountPath, submit.path)
	require.Equal(
		t,
		"UserName=G123456789&Password=p%40ss+word%261&__RequestVerificationToken="+testToken,
		submit.body,
	)
	require.Equal(t, "application/x-www-form-urlencoded", submit.header.Get("Content-Type"))
	require.True(t, strings.HasSuffix(submit.header.Get("Referer"), accountPath))
	require.True(t, strings.HasPrefix(submit.header.Get("Referer"), submit.header.Get("Origin")))
	require.NotEmpty(t, submit.header.Get("Origin"))
	require.Contains(t, submit.header.Get("User-Agent"), userAgent)
	require.Contains(t, submit.header.Get("Cookie"), testCookie)

	culture := posts[1]
	require.Equal(t, "/moutamadris/General/SetCulture", culture.path)
	require.Equal(t, "culture=en", culture.query)
}

func TestAuthenticateTokenMissing(t *testing.T) {
	pages := map[string]string{
		"no input":     `<form><input name="UserName" /></form>`,
		"empty value":  `<input name="__RequestVerificationToken" value="  " />`,
		"no attribute": `<input name="__RequestVerificationToken" />`,
		"empty page":   ``,
		"not html":     `{"error": "maintenance"}`,
	}

	for name, page := range pages {
		t.Run(name, func(t *testing.T) {
			portal, client, rec := setup(t)
			portal.loginPage = page

			_, err := client.Authenticate(context.Background(), Credentials{
				Username: testUsername,
				Password: testPassword,
			})
			requireKind(t, err, TokenMissing)

			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			require.Empty(t, portal.posts())
			require.Len(t, rec.Reports("broken"), 1)
		})
	}
}

func TestAuthenticateLoginRejected(t *testing.T) {
	statuses := []int{http.StatusOK, http.StatusUnauthorized, http.StatusInternalServerError}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			portal, client, _ := setup(t)
			portal.loginStatus = status
			portal.loginResponse = `<div class="validation-summary-errors">Nom d'utilisateur ou mot de passe incorrect</div>`

			_, err := client.Authenticate(context.Background(), Credentials{
				Username: testUsername,
				Password: "wrong",
			})
			requireKind(t, err, LoginRejected)

			_, setCulture := portal.find("/moutamadris/General/SetCulture")
			require.False(t, setCulture)
		})
	}
}

func TestAuthenticateCultureFailureIsNotFatal(t *testing.T) {
	portal, client, rec := setup(t)
	portal.cultureStatus = http.StatusInternalServerError

	session, err := client.Authenticate(context.Background(), Credentials{
		Username: testUsername,
		Password: testPassword,
	})
	require.NoError(t, err)
	session.Close()

	var cultureWarnings int
	for _, report := range rec.Reports("warning") {
		if report.Id == "massar: "+report_client_set_culture {
			cultureWarnings++
		}
	}
	require.Equal(t, 1, cultureWarnings)
}

func TestAuthenticateNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, url, &telemetry.Recorder{})
	_, err := client.Authenticate(context.Background(), Credentials{
		Username: testUsername,
		Password: testPassword,
	})
	requireKind(t, err, NetworkError)
	require.NotErrorIs(t, err, LoginRejected)
}

func authenticate(t *testing.T, client Client) *Session {
	t.Helper()
	session, err := client.Authenticate(context.Background(), Credentials{
		Username: testUsername,
		Password: testPassword,
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestFetchReportHtml(t *testing.T) {
	portal, client, _ := setup(t)
	session := authenticate(t, client)

	markup, err := session.FetchReportHtml(context.Background(), ReportQuery{
		AcademicYear: "2024/2025",
		SessionId:    "2",
	})
	require.NoError(t, err)
	require.Equal(t, reportFixture, markup)

	req, ok := portal.find(bulletinsPath)
	require.True(t, ok)
	require.Equal(t, "Annee=2024&IdSession=2", req.body)
	require.Equal(t, "XMLHttpRequest", req.header.Get("X-Requested-With"))
	require.Equal(t, "application/x-www-form-urlencoded", req.header.Get("Content-Type"))
	require.True(t, strings.HasSuffix(req.header.Get("Referer"), notesPagePath))
	require.NotEmpty(t, req.header.Get("Origin"))
	require.Contains(t, req.header.Get("User-Agent"), userAgent)
	require.Contains(t, req.header.Get("Cookie"), testCookie)
}

func TestFetchReportHtmlKeepsSurroundingWhitespace(t *testing.T) {
	portal, client, _ := setup(t)
	session := authenticate(t, client)
	portal.report = "\n  <dl><dt>Classe</dt><dd>X</dd></dl>\n"

	markup, err := session.FetchReportHtml(context.Background(), ReportQuery{
		AcademicYear: "2024/2025",
		SessionId:    "1",
	})
	require.NoError(t, err)
	require.Equal(t, portal.report, markup)
}

func TestFetchReportHtmlFailures(t *testing.T) {
	cases := []struct {
		name   string
		report string
		kind   ErrorKind
	}{
		{name: "empty", report: "", kind: EmptyResponse},
		{name: "whitespace", report: " \n\t ", kind: EmptyResponse},
		{name: "login page", report: loginPage, kind: UnexpectedShape},
		{name: "error page", report: `<h1>Une erreur est survenue</h1>`, kind: UnexpectedShape},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			portal, client, _ := setup(t)
			session := authenticate(t, client)
			portal.report = test.report

			_, err := session.FetchReportHtml(context.Background(), ReportQuery{
				AcademicYear: "2023/2024",
				SessionId:    "1",
			})
			requireKind(t, err, test.kind)

			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
		})
	}
}

func TestFetchReportHtmlTimeout(t *testing.T) {
	portal, _, _ := setup(t)
	portal.reportDelay = 5 * time.Second
	server := httptest.NewServer(portal)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		BaseUrl:           server.URL,
		Timeout:           100 * time.Millisecond,
		RequestsPerSecond: -1,
		Telemetry:         &telemetry.Recorder{},
	})
	require.NoError(t, err)
	session := authenticate(t, client)

	start := time.Now()
	_, err = session.FetchReportHtml(context.Background(), ReportQuery{
		AcademicYear: "2024/2025",
		SessionId:    "1",
	})
	requireKind(t, err, NetworkError)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestGetGradeReport(t *testing.T) {
	_, client, _ := setup(t)

	report, err := client.GetGradeReport(context.Background(), testUsername, testPassword, "2024/2025", "1")
	require.NoError(t, err)
	require.Equal(t, "TCS-3", report.Summary.ClassName)
	require.Len(t, report.ExamRows, 2)
}

func TestGetGradeReportDistinguishesFailures(t *testing.T) {
	portal, client, _ := setup(t)
	portal.loginResponse = "invalid"

	_, err := client.GetGradeReport(context.Background(), testUsername, "wrong", "2024/2025", "1")
	requireKind(t, err, LoginRejected)
	require.False(t, errors.Is(err, NetworkError))
	require.NotContains(t, err.Error(), "wrong")

	_, err = client.GetGradeReport(context.Background(), testUsername, testPassword, "2024/2025", "1")
	requireKind(t, err, LoginRejected)

	portal.loginResponse = accountPage
	portal.report = "<p>Session expirée</p>"
	_, err = client.GetGradeReport(context.Background(), testUsername, testPassword, "2024/2025", "1")
	requireKind(t, err, UnexpectedShape)
}

func TestGetGradeReportDegraded(t *testing.T) {
	portal, client, rec := setup(t)
	portal.report = `<dl><dt>Classe</dt><dd>TCS-1</dd></dl>`

	report, err := client.GetGradeReport(context.Background(), testUsername, testPassword, "2024/2025", "1")
	require.NoError(t, err)
	require.Equal(t, "TCS-1", report.Summary.ClassName)
	require.True(t, report.Degraded())

	var degraded bool
	for _, warning := range rec.Reports("warning") {
		if warning.Id == "massar: "+report_client_get_grade_report {
			degraded = true
		}
	}
	require.True(t, degraded)
}

func TestSessionsAreIndependent(t *testing.T) {
	var logins atomic.Int32
	portal := newFakePortal()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == accountPath {
			logins.Add(1)
		}
		portal.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	client := newTestClient(t, server.URL, &telemetry.Recorder{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.GetGradeReport(context.Background(), testUsername, testPassword, "2024/2025", "1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(len(errs)), logins.Load())
}

func TestNewClientRejectsRelativeUrl(t *testing.T) {
	_, err := NewClient(Options{BaseUrl: "massarservice.men.gov.ma"})
	require.Error(t, err)
}

func TestEncodeFormKeepsOrder(t *testing.T) {
	require.Equal(
		t,
		"b=2&a=1+%2B+1",
		encodeForm([2]string{"b", "2"}, [2]string{"a", "1 + 1"}),
	)
}

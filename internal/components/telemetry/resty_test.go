package telemetry

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestRedactForm(t *testing.T) {
	body := url.Values{
		"UserName":                   {"student"},
		"Password":                   {"hunter2"},
		"__RequestVerificationToken": {"tok"},
	}.Encode()

	redacted := RedactForm(body)
	require.NotContains(t, redacted, "hunter2")
	require.NotContains(t, redacted, "=tok")
	require.Contains(t, redacted, "UserName=student")

	require.Equal(t, "Annee=2024&IdSession=1", RedactForm("Annee=2024&IdSession=1"))
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "resty")
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	rec := &Recorder{}
	client := resty.New()
	InstrumentResty(client, "test", rec, output)

	_, err = client.R().
		SetFormData(map[string]string{"Password": "hunter2"}).
		Post(server.URL)
	require.NoError(t, err)

	debug := rec.Reports("debug")
	require.Len(t, debug, 2)
	require.Equal(t, report_resty_request, debug[0].Id)
	require.Equal(t, report_resty_response, debug[1].Id)

	dumped, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(dumped), "---- REQUEST ----"))
	require.NotContains(t, string(dumped), "hunter2")
}

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	scoped := NewScopedAPI("massar", rec)
	scoped.ReportBroken("client.authenticate", "x")
	scoped.ReportWarning("client.set-culture")

	broken := rec.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "massar: client.authenticate", broken[0].Id)
	require.Equal(t, []any{"x"}, broken[0].Params)
	require.Equal(t, "massar: client.set-culture", rec.Reports("warning")[0].Id)
}

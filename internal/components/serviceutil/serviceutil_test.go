package serviceutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireAccessToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	handler := RequireAccessToken("secret", ok)

	testCases := []struct {
		header string
		status int
	}{
		{header: "", status: http.StatusUnauthorized},
		{header: "Bearer wrong", status: http.StatusUnauthorized},
		{header: "Basic secret", status: http.StatusUnauthorized},
		{header: "Bearer secret", status: http.StatusTeapot},
	}

	for _, test := range testCases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if test.header != "" {
			req.Header.Set("Authorization", test.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, test.status, rec.Code, test.header)
	}

	rec := httptest.NewRecorder()
	RequireAccessToken("", ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestNewAccessToken(t *testing.T) {
	a, err := NewAccessToken()
	require.NoError(t, err)
	b, err := NewAccessToken()
	require.NoError(t, err)
	require.Len(t, a, 40)
	require.NotEqual(t, a, b)
}

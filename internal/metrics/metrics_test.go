package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := metrics.New()

	m.StoreError("set")
	m.StoreError("set")
	m.AuthCall("sign_in", errors.ErrInvalidCredentials)
	m.AccessDecision("deny", false)
	m.GuardRedirect("must_reset")
	m.SigninAttempt(nil)

	require.Equal(t, 2.0, testutil.ToFloat64(m.SessionStoreErrorsTotal.WithLabelValues("set")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AuthServiceCallsTotal.WithLabelValues("sign_in", "invalid_credentials")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AccessDecisionsTotal.WithLabelValues("deny", "false")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GuardRedirectsTotal.WithLabelValues("must_reset")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SigninAttemptsTotal.WithLabelValues("none")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.StoreError("get")
		m.AuthCall("refresh", nil)
		m.ObserveHTTP("GET", "/login", 200, time.Millisecond)
		m.TranslateLookup("hit")
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := metrics.New()
	m.ObserveHTTP("GET", "/login", http.StatusOK, 10*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `hub_http_requests_total{method="GET",route="/login",status="200"} 1`)
}

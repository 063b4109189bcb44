package translate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/translate"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "Dzień dobry", r.URL.Query().Get("q"))
		require.Equal(t, "pl|uk", r.URL.Query().Get("langpair"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responseData":{"translatedText":"Добрий день"},"responseStatus":200}`))
	}))
	defer srv.Close()

	m := metrics.New()
	tr := translate.NewWithHTTPClient(srv.URL, srv.Client(), m)

	require.Equal(t, "Добрий день", tr.Translate(context.Background(), " Dzień dobry ", "", ""))
	require.Equal(t, "Добрий день", tr.Translate(context.Background(), "Dzień dobry", "pl", "uk"))
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(m.TranslateLookupsTotal.WithLabelValues("cache_hit")))
}

func TestTranslateAbsorbsFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"quota exceeded", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"responseData":{"translatedText":"MYMEMORY WARNING"},"responseStatus":"429"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			m := metrics.New()
			tr := translate.NewWithHTTPClient(srv.URL, srv.Client(), m)
			require.Empty(t, tr.Translate(context.Background(), "Cześć", "pl", "uk"))
			require.Equal(t, 1.0, testutil.ToFloat64(m.TranslateLookupsTotal.WithLabelValues("error")))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		tr := translate.NewWithHTTPClient("http://127.0.0.1:1", http.DefaultClient, nil)
		require.Empty(t, tr.Translate(context.Background(), "Cześć", "pl", "uk"))
	})

	t.Run("empty text skips the call", func(t *testing.T) {
		tr := translate.NewWithHTTPClient("http://127.0.0.1:1", http.DefaultClient, nil)
		require.Empty(t, tr.Translate(context.Background(), "   ", "pl", "uk"))
	})
}

// Package translate translates short UI texts through the MyMemory API. Failures are absorbed:
// callers always get a string back, empty when no translation is available.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultURL  = "https://api.mymemory.translated.net/get"
	DefaultFrom = "pl"
	DefaultTo   = "uk"

	maxTextLength = 500
	cacheEntries  = 1024
	cacheTTL      = 24 * time.Hour
)

type response struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus json.Number `json:"responseStatus"`
}

type Translator struct {
	endpoint string
	http     *http.Client
	cache    *lru.LRU[string, string]
	metrics  *metrics.Metrics
}

func New(endpoint string, m *metrics.Metrics) *Translator {
	return NewWithHTTPClient(endpoint, &http.Client{
		Timeout:   5 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, m)
}

func NewWithHTTPClient(endpoint string, httpClient *http.Client, m *metrics.Metrics) *Translator {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Translator{
		endpoint: endpoint,
		http:     httpClient,
		cache:    lru.NewLRU[string, string](cacheEntries, nil, cacheTTL),
		metrics:  m,
	}
}

// Translate returns text translated from one language to another, or "" when the text is
// empty or the service cannot translate it.
func (t *Translator) Translate(ctx context.Context, text, from, to string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if len([]rune(text)) > maxTextLength {
		text = string([]rune(text)[:maxTextLength])
	}
	if from == "" {
		from = DefaultFrom
	}
	if to == "" {
		to = DefaultTo
	}

	key := from + "|" + to + "|" + text
	if v, ok := t.cache.Get(key); ok {
		t.metrics.TranslateLookup("cache_hit")
		return v
	}

	translated, err := t.fetch(ctx, text, from, to)
	if err != nil {
		log.Warn().Err(err).Str("langpair", from+"|"+to).Msg("[translate Translate] translation unavailable")
		t.metrics.TranslateLookup("error")
		return ""
	}
	t.metrics.TranslateLookup("ok")
	t.cache.Add(key, translated)
	return translated
}

func (t *Translator) fetch(ctx context.Context, text, from, to string) (string, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", from+"|"+to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation service unavailable: status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.ResponseStatus.String() != "200" || body.ResponseData.TranslatedText == "" {
		return "", fmt.Errorf("translation failed: status %s", body.ResponseStatus)
	}
	return body.ResponseData.TranslatedText, nil
}

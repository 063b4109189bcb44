package sessionstore

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
)

// maxChunk keeps each encoded cookie value under the common 4096 byte browser limit,
// leaving room for the name and attributes.
const maxChunk = 3600

// CookieProvider stores values in cookies scoped to the parent domain so every subdomain reads
// the same entry.
type CookieProvider struct {
	domain  string
	maxAge  time.Duration
	metrics *metrics.Metrics
}

var _ Provider = (*CookieProvider)(nil)

func NewCookieProvider(parentDomain string, maxAge time.Duration, m *metrics.Metrics) *CookieProvider {
	return &CookieProvider{
		domain:  "." + strings.Trim(parentDomain, "."),
		maxAge:  maxAge,
		metrics: m,
	}
}

func (p *CookieProvider) Kind() Kind { return KindCookie }

func (p *CookieProvider) For(w http.ResponseWriter, r *http.Request) Store {
	return &cookieStore{
		provider: p,
		w:        w,
		r:        r,
		overlay:  map[string]*string{},
		written:  map[string]int{},
	}
}

type cookieStore struct {
	provider *CookieProvider
	w        http.ResponseWriter
	r        *http.Request
	// overlay holds writes made during this request; a nil entry is a removal.
	overlay map[string]*string
	// written counts the chunk cookies queued on the response per key.
	written map[string]int
}

func (s *cookieStore) Get(key string) (string, bool) {
	if v, ok := s.overlay[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	encoded, ok := s.readRaw(key)
	if !ok {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		storeFailure(s.provider.metrics, "get", key, errors.Wrapf(errors.ErrStorage, "decode cookie: %v", err))
		return "", false
	}
	return string(decoded), true
}

func (s *cookieStore) readRaw(key string) (string, bool) {
	if c, err := s.r.Cookie(key); err == nil {
		return c.Value, true
	}
	var b strings.Builder
	for i := 0; ; i++ {
		c, err := s.r.Cookie(chunkName(key, i))
		if err != nil {
			break
		}
		b.WriteString(c.Value)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func (s *cookieStore) Set(key, value string) {
	if !validCookieName(key) {
		storeFailure(s.provider.metrics, "set", key, fmt.Errorf("%w: invalid cookie name", errors.ErrStorage))
		return
	}
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))

	if len(encoded) <= maxChunk {
		s.write(key, encoded)
		s.expireChunks(key, 0)
	} else {
		n := 0
		for start := 0; start < len(encoded); start += maxChunk {
			end := min(start+maxChunk, len(encoded))
			s.write(chunkName(key, n), encoded[start:end])
			n++
		}
		s.expire(key)
		s.expireChunks(key, n)
		s.written[key] = n
	}
	s.overlay[key] = &value
}

func (s *cookieStore) Remove(key string) {
	if !validCookieName(key) {
		return
	}
	s.expire(key)
	s.expireChunks(key, 0)
	s.overlay[key] = nil
}

func (s *cookieStore) write(name, value string) {
	setCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   s.provider.domain,
		Path:     "/",
		MaxAge:   int(s.provider.maxAge.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *cookieStore) expire(name string) {
	setCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Domain:   s.provider.domain,
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// expireChunks removes chunk cookies numbered from onwards, both those the request still carries
// and those queued earlier in this request.
func (s *cookieStore) expireChunks(key string, from int) {
	prefix := key + "."
	for _, c := range s.r.Cookies() {
		if !strings.HasPrefix(c.Name, prefix) {
			continue
		}
		i, err := strconv.Atoi(strings.TrimPrefix(c.Name, prefix))
		if err != nil || i < from {
			continue
		}
		s.expire(c.Name)
	}
	for i := from; i < s.written[key]; i++ {
		s.expire(chunkName(key, i))
	}
	if s.written[key] > from {
		s.written[key] = from
	}
}

func chunkName(key string, i int) string {
	return key + "." + strconv.Itoa(i)
}

func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

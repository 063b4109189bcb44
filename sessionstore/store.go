package sessionstore

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/rs/zerolog/log"
)

// Store persists serialized session state. Failures never surface to callers: reads report
// absent and writes become no-ops.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Provider binds a Store to one request/response pair.
type Provider interface {
	For(w http.ResponseWriter, r *http.Request) Store
	Kind() Kind
}

type Kind int

const (
	KindLocal Kind = iota
	KindCookie
)

func (k Kind) String() string {
	if k == KindCookie {
		return "cookie"
	}
	return "local"
}

// Select chooses the cookie store when host is the parent domain or one of its subdomains.
// It has no side effects.
func Select(host, parentDomain string) Kind {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if navigation.IsParentOrSubdomain(strings.TrimSpace(host), parentDomain) {
		return KindCookie
	}
	return KindLocal
}

type Options struct {
	ParentDomain string
	MaxAge       time.Duration
	// Backend holds local store values. Defaults to an in-memory backend.
	Backend Backend
	Metrics *metrics.Metrics
}

// NewProvider returns the provider for kind.
func NewProvider(kind Kind, opts Options) Provider {
	if kind == KindCookie {
		return NewCookieProvider(opts.ParentDomain, opts.MaxAge, opts.Metrics)
	}
	backend := opts.Backend
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return NewLocalProvider(backend, opts.MaxAge, opts.Metrics)
}

func storeFailure(m *metrics.Metrics, op, key string, err error) {
	log.Warn().Err(err).Str("op", op).Str("key", key).Msg("session store failure")
	m.StoreError(op)
}

// setCookie adds c to the response, replacing any Set-Cookie already queued for the same name.
func setCookie(w http.ResponseWriter, c *http.Cookie) {
	prefix := c.Name + "="
	existing := w.Header()["Set-Cookie"]
	kept := existing[:0]
	for _, line := range existing {
		if !strings.HasPrefix(line, prefix) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		w.Header().Del("Set-Cookie")
	} else {
		w.Header()["Set-Cookie"] = kept
	}
	http.SetCookie(w, c)
}

package sessionstore

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/internal/metrics"
)

// DeviceCookieName identifies the browser whose values a LocalProvider holds.
const DeviceCookieName = "hub_device"

// LocalProvider keeps values server-side, scoped to the current host through a host-only
// device cookie. Used when the process does not serve the parent domain.
type LocalProvider struct {
	backend Backend
	ttl     time.Duration
	metrics *metrics.Metrics
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(backend Backend, ttl time.Duration, m *metrics.Metrics) *LocalProvider {
	return &LocalProvider{backend: backend, ttl: ttl, metrics: m}
}

func (p *LocalProvider) Kind() Kind { return KindLocal }

func (p *LocalProvider) For(w http.ResponseWriter, r *http.Request) Store {
	s := &localStore{provider: p, w: w, r: r, ctx: r.Context()}
	if c, err := r.Cookie(DeviceCookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			s.device = id.String()
		}
	}
	return s
}

type localStore struct {
	provider *LocalProvider
	w        http.ResponseWriter
	r        *http.Request
	ctx      context.Context
	device   string
}

func (s *localStore) Get(key string) (string, bool) {
	if s.device == "" {
		return "", false
	}
	v, ok, err := s.provider.backend.Get(s.ctx, s.device, key)
	if err != nil {
		storeFailure(s.provider.metrics, "get", key, errors.Wrapf(errors.ErrStorage, "%v", err))
		return "", false
	}
	return v, ok
}

func (s *localStore) Set(key, value string) {
	if s.device == "" {
		s.device = uuid.NewString()
		setCookie(s.w, &http.Cookie{
			Name:     DeviceCookieName,
			Value:    s.device,
			Path:     "/",
			MaxAge:   int(s.provider.ttl.Seconds()),
			Secure:   s.r.TLS != nil,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if err := s.provider.backend.Set(s.ctx, s.device, key, value, s.provider.ttl); err != nil {
		storeFailure(s.provider.metrics, "set", key, errors.Wrapf(errors.ErrStorage, "%v", err))
	}
}

func (s *localStore) Remove(key string) {
	if s.device == "" {
		return
	}
	if err := s.provider.backend.Delete(s.ctx, s.device, key); err != nil {
		storeFailure(s.provider.metrics, "remove", key, errors.Wrapf(errors.ErrStorage, "%v", err))
	}
}

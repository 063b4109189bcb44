package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/authclient"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/guard"
	"github.com/jrsteele09/sso-hub/internal/config"
	"github.com/jrsteele09/sso-hub/internal/i18n"
	"github.com/jrsteele09/sso-hub/internal/metrics"
	"github.com/jrsteele09/sso-hub/provisioning"
	"github.com/jrsteele09/sso-hub/ratelimit"
	"github.com/jrsteele09/sso-hub/sessionstore"
	"github.com/jrsteele09/sso-hub/translate"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the HTTP shell drives. Limiter, Translator and Provisioning are
// optional.
type Deps struct {
	Sessions     sessionstore.Provider
	Factory      *authclient.Factory
	Resolver     guard.Resolver
	Directory    directory.Repo
	Limiter      ratelimit.Limiter
	Translator   *translate.Translator
	Provisioning *provisioning.Service
	Messages     *i18n.Translator
	Metrics      *metrics.Metrics
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	handler http.Handler
	routes  []string
	config  config.Config
	deps    Deps

	templates map[string]*template.Template

	redirectDelay time.Duration
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Factory == nil || deps.Resolver == nil || deps.Directory == nil {
		return nil, fmt.Errorf("[Server New] sessions, auth client factory, resolver and directory are required")
	}
	if deps.Messages == nil {
		messages, err := i18n.New(cfg.GetDefaultLanguage())
		if err != nil {
			return nil, fmt.Errorf("[Server New] load message catalogs: %w", err)
		}
		deps.Messages = messages
	}

	s := &Server{
		env:           cfg.GetEnv(),
		mux:           http.NewServeMux(),
		config:        cfg,
		deps:          deps,
		redirectDelay: cfg.GetPostLoginRedirectDelay(),
	}
	if err := s.parseTemplates(); err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}

	s.initRoutes()
	s.handler = s.TelemetryMiddleware(s.mux)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colouredMethod(method), path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// absoluteURL builds a URL on this host for links handed to the Auth Service.
func absoluteURL(r *http.Request, path string) string {
	return getScheme(r) + "://" + r.Host + path
}

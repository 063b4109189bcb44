package server

import (
	"net/http"
	"net/url"

	"golang.org/x/text/language"

	"github.com/jrsteele09/sso-hub/navigation"
	"github.com/jrsteele09/sso-hub/routegate"
)

// pageData is the template model shared by every screen.
type pageData struct {
	AppName   string
	Lang      string
	Languages []string
	Title     string
	Error     string
	ReturnTo  string
	T         func(key string) string
}

type interstitialData struct {
	pageData
	Location string
	Seconds  int
}

func (s *Server) page(r *http.Request, tag language.Tag, titleKey string) pageData {
	langs := make([]string, 0, len(s.deps.Messages.Supported()))
	for _, t := range s.deps.Messages.Supported() {
		langs = append(langs, t.String())
	}
	return pageData{
		AppName:   s.config.GetAppName(),
		Lang:      tag.String(),
		Languages: langs,
		Title:     s.deps.Messages.T(tag, titleKey),
		Error:     s.deps.Messages.Marker(tag, r.URL.Query().Get(navigation.ParamError)),
		T:         func(key string) string { return s.deps.Messages.T(tag, key) },
	}
}

// gateURI is the request URI the route gate sees. A forced logout is consumed by this
// request and never carried into a return target.
func gateURI(r *http.Request) string {
	q := r.URL.Query()
	if !q.Has(navigation.ParamForceLogout) {
		return r.URL.RequestURI()
	}
	q.Del(navigation.ParamForceLogout)
	u := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}
	return u.RequestURI()
}

// screen mounts the session for r and lets the route gate decide before handler renders.
func (s *Server) screen(handler func(http.ResponseWriter, *http.Request, *requestAuth)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ra := s.mount(w, r)
		defer ra.release()

		if !ra.navigated.IsNone() {
			navigate(w, r, ra.navigated)
			return
		}
		if out := routegate.Decide(ra.ac, gateURI(r)); out.IsRedirect() {
			navigate(w, r, out.Destination)
			return
		}
		handler(w, r, ra)
	}
}

// NotFoundHandler answers every path without a screen once the gate has let it through.
func (s *Server) NotFoundHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, _ *requestAuth) {
		tag := s.languageFrom(r)
		http.Error(w, s.deps.Messages.T(tag, "notfound.title"), http.StatusNotFound)
	})
}

// IndexHandler is the entry screen. The gate always redirects it.
func (s *Server) IndexHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		navigate(w, r, routegate.PostLogin(ra.ac))
	})
}

type dashboardApp struct {
	Name        string
	Description string
	URL         string
	IsFree      bool
}

type dashboardData struct {
	pageData
	DisplayName string
	Email       string
	Apps        []dashboardApp
}

// DashboardHandler lists the active applications. A valid return_to forwards immediately.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return s.screen(func(w http.ResponseWriter, r *http.Request, ra *requestAuth) {
		if raw := r.URL.Query().Get(navigation.ParamDashboardReturn); raw != "" {
			if dest := navigation.ValidateReturnTarget(raw, s.config.GetParentDomain()); !dest.IsNone() {
				navigate(w, r, dest)
				return
			}
		}

		tag := s.languageFrom(r)
		data := dashboardData{pageData: s.page(r, tag, "dashboard.title")}
		if ra.ac.Session != nil {
			data.Email = ra.ac.Session.User.Email
		}
		if p := ra.ac.Decision.Profile; p != nil {
			data.DisplayName = p.FullName
			if p.Email != "" {
				data.Email = p.Email
			}
		}

		apps, err := s.deps.Directory.ListApplications(r.Context())
		if err != nil {
			logger(r).Warn().Err(err).Msg("[server Dashboard] failed to list applications")
			data.Error = s.deps.Messages.T(tag, "error.transient")
		}
		for _, a := range apps {
			data.Apps = append(data.Apps, dashboardApp{
				Name:        a.Name,
				Description: a.Description,
				URL:         a.DomainURL,
				IsFree:      a.IsFree,
			})
		}
		s.render(w, r, http.StatusOK, templateDashboard, data)
	})
}

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/internal/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "hub_lang"
)

//go:embed locales/*.yaml
var localeFiles embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Translator resolves user-facing strings from the embedded catalogs.
type Translator struct {
	builder   *catalog.Builder
	supported []language.Tag
	matcher   language.Matcher
}

// New loads the embedded catalogs. defaultLang is moved to the front of the supported list
// so it wins when nothing else matches.
func New(defaultLang string) (*Translator, error) {
	return LoadFromFS(localeFiles, defaultLang)
}

func LoadFromFS(fsys fs.FS, defaultLang string) (*Translator, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("[i18n Load] glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("[i18n Load] no catalog files found")
	}
	sort.Strings(paths)

	def, ok := parseTag(defaultLang)
	if !ok {
		return nil, fmt.Errorf("[i18n Load] invalid default language %q", defaultLang)
	}

	builder := catalog.NewBuilder(catalog.Fallback(def))
	var tags []language.Tag
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("[i18n Load] read %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("[i18n Load] parse %s: %w", path, err)
		}
		tag, ok := parseTag(file.Locale)
		if !ok {
			return nil, fmt.Errorf("[i18n Load] %s: invalid locale %q", path, file.Locale)
		}
		for key, value := range file.Messages {
			if err := builder.SetString(tag, key, value); err != nil {
				return nil, fmt.Errorf("[i18n Load] %s: key %q: %w", path, key, err)
			}
		}
		tags = append(tags, tag)
	}

	supported := []language.Tag{def}
	found := false
	for _, tag := range tags {
		if tag == def {
			found = true
			continue
		}
		supported = append(supported, tag)
	}
	if !found {
		return nil, fmt.Errorf("[i18n Load] no catalog for default language %q", def)
	}

	return &Translator{
		builder:   builder,
		supported: supported,
		matcher:   language.NewMatcher(supported),
	}, nil
}

func parseTag(value string) (language.Tag, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "ua" {
		value = "uk"
	}
	if value == "" {
		return language.Und, false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// Default is the fallback language.
func (t *Translator) Default() language.Tag {
	return t.supported[0]
}

func (t *Translator) Supported() []language.Tag {
	return append([]language.Tag(nil), t.supported...)
}

func (t *Translator) match(tags ...language.Tag) language.Tag {
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return t.Default()
	}
	return t.supported[idx]
}

// ResolveTag picks the language for r from the lang query parameter, the language cookie and
// Accept-Language, in that order. The bool reports whether the query parameter should be
// persisted as a cookie.
func (t *Translator) ResolveTag(r *http.Request) (language.Tag, bool) {
	if r == nil {
		return t.Default(), false
	}
	if v := r.URL.Query().Get(LangParam); v != "" {
		if tag, ok := parseTag(v); ok {
			return t.match(tag), true
		}
	}
	if c, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := parseTag(c.Value); ok {
			return t.match(tag), false
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return t.match(tags...), false
		}
	}
	return t.Default(), false
}

// SetLanguageCookie persists the selected language on the response.
func SetLanguageCookie(w http.ResponseWriter, tag language.Tag) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

func (t *Translator) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(t.builder))
}

// T returns the message for key in tag. Unknown keys are returned unchanged.
func (t *Translator) T(tag language.Tag, key string) string {
	return t.Printer(tag).Sprintf(key)
}

// MarkerFor returns the redirect marker for err, the inverse of Marker.
func MarkerFor(err error) string {
	return strings.TrimPrefix(ErrorKey(err), "error.")
}

// ErrorKey maps an error onto the catalog key shown to the user. Provider text is never shown.
func ErrorKey(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errors.ErrInvalidCredentials):
		return "error.invalid_credentials"
	case errors.Is(err, errors.ErrRateLimited):
		return "error.rate_limited"
	case errors.Is(err, errors.ErrEmailUnconfirmed):
		return "error.email_unconfirmed"
	case errors.Is(err, errors.ErrTokenInvalidOrExpired), errors.Is(err, errors.ErrSessionMissing):
		return "error.session_expired"
	case errors.Is(err, errors.ErrMembershipDenied):
		return "error.no_membership"
	case errors.Is(err, errors.ErrStaffResetNotAllowed):
		return "error.staff_reset"
	case errors.Is(err, errors.ErrSecretMismatch):
		return "error.password_mismatch"
	case errors.Is(err, errors.ErrCurrentSecretInvalid):
		return "error.current_password"
	case errors.Is(err, errors.ErrWeakPIN):
		return "error.weak_pin"
	case errors.Is(err, errors.ErrWeakSecret):
		return "error.weak_password"
	case errors.Is(err, errors.ErrAccountExists):
		return "error.account_exists"
	case errors.Is(err, errors.ErrTermsNotAccepted):
		return "error.terms_required"
	case errors.Is(err, errors.ErrTransientNetwork):
		return "error.transient"
	}
	return "error.generic"
}

// Error returns the localized user-facing message for err.
func (t *Translator) Error(tag language.Tag, err error) string {
	if err == nil {
		return ""
	}
	return t.T(tag, ErrorKey(err))
}

// Marker translates an error marker carried in a redirect parameter such as "no_membership".
// Unknown markers map to the generic message.
func (t *Translator) Marker(tag language.Tag, marker string) string {
	switch marker {
	case "":
		return ""
	case "no_membership", "invalid_credentials", "rate_limited", "email_unconfirmed",
		"session_expired", "staff_reset", "transient", "weak_password", "weak_pin",
		"password_mismatch", "current_password", "account_exists", "terms_required":
		return t.T(tag, "error."+marker)
	}
	return t.T(tag, "error.generic")
}

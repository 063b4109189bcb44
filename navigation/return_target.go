package navigation

import (
	"net/url"
	"strings"
)

// ValidateReturnTarget checks a caller-supplied return target. Accepted values are relative
// in-app paths ("/x", not "//x") and absolute http(s) URLs whose host is the parent domain or
// one of its subdomains. Anything else yields None.
func ValidateReturnTarget(raw, parentDomain string) Destination {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return None
	}

	if strings.HasPrefix(raw, "/") {
		if strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
			return None
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host != "" || u.Scheme != "" {
			return None
		}
		return Internal(raw)
	}

	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return None
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return None
	}
	if !IsParentOrSubdomain(u.Hostname(), parentDomain) {
		return None
	}
	return External(raw)
}

// IsParentOrSubdomain reports whether host equals parent or ends with "."+parent.
func IsParentOrSubdomain(host, parent string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	parent = strings.Trim(strings.ToLower(parent), ".")
	if host == "" || parent == "" {
		return false
	}
	return host == parent || strings.HasSuffix(host, "."+parent)
}

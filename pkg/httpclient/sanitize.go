package httpclient

import (
	"net/http"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveParams contains query parameter names that should be redacted from logs.
// These are matched case-insensitively as substrings.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
	"signature",
}

// sensitiveHeaders are replaced wholesale by SanitizeHeaders.
var sensitiveHeaders = map[string]bool{
	"Authorization":        true,
	"Proxy-Authorization":  true,
	"Cookie":               true,
	"Set-Cookie":           true,
	"X-Api-Key":            true,
	"X-Amz-Security-Token": true,
}

// SanitizeURL renders u with sensitive query parameters and userinfo
// passwords redacted.
func SanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	safe := *u
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			safe.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if isSensitiveParam(param) {
				q.Set(param, redacted)
			}
		}
		safe.RawQuery = q.Encode()
	}
	return safe.String()
}

// SanitizeURLString parses raw and sanitizes it. Unparseable input is
// returned without its query string.
func SanitizeURLString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	return SanitizeURL(u)
}

// SanitizeHeaders returns a copy of h with credential-bearing headers
// redacted. Custom API key headers can be added through extra.
func SanitizeHeaders(h http.Header, extra ...string) http.Header {
	out := h.Clone()
	for name := range out {
		if sensitiveHeaders[name] {
			out[name] = []string{redacted}
		}
	}
	for _, name := range extra {
		if out.Get(name) != "" {
			out.Set(name, redacted)
		}
	}
	return out
}

// isSensitiveParam checks if a parameter name matches the sensitive list.
func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

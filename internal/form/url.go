package form

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL adds a missing https scheme and rewrites Google Forms
// preview links to the fillable view.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("form url is empty")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid form url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("form url %q has no host", raw)
	}
	if strings.HasSuffix(u.Host, "docs.google.com") && strings.Contains(u.Path, "/forms/") && strings.HasSuffix(u.Path, "/preview") {
		u.Path = strings.TrimSuffix(u.Path, "/preview") + "/viewform"
	}
	return u.String(), nil
}

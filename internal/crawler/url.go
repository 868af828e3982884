package crawler

import (
	"net/url"
	"strings"
)

// ResolveURL resolves candidate against base and returns an absolute URL.
//
// A candidate without a host is resolved with RFC 3986 reference resolution
// (query and fragment kept); a candidate with a host but no scheme gets
// "http"; anything else is returned as given. Unparsable input yields "".
// ResolveURL never filters by host.
func ResolveURL(base, candidate string) string {
	ref, err := url.Parse(strings.TrimSpace(candidate))
	if err != nil {
		return ""
	}
	if ref.Host == "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		return b.ResolveReference(ref).String()
	}
	if ref.Scheme == "" {
		ref.Scheme = "http"
	}
	return ref.String()
}

// SameHost reports whether both URLs point at the same host (port included).
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || ua.Host == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}

// NormalizeURL standardizes a URL to avoid duplicates in the visited set.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, drops the fragment, and turns an empty path into "/".
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

// followableLinks resolves raw hrefs found on pageURL and keeps those that
// are non-empty, differ from the page itself, and stay on the page's host.
func followableLinks(pageURL string, hrefs []string) []string {
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		link := ResolveURL(pageURL, href)
		if link == "" || link == pageURL || !SameHost(link, pageURL) {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

func visitKey(rawURL string) string {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return rawURL
	}
	return key
}

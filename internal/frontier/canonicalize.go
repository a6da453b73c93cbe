package frontier

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize normalizes a URL: lowercases scheme/host, strips the
// fragment, strips default ports, sorts and re-escapes query
// parameters, and normalizes the trailing slash. The Frontier does not
// call it: its per-partition seen-set, the only dedup mechanism, keys
// on the URL exactly as enqueued.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	if u.Path == "" {
		u.Path = "/"
	} else if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	return u.String(), nil
}

// Host returns the registrable host for url: the effective
// public-suffix-plus-one domain, lowercased, "www." stripped. Uses
// publicsuffix so "a.b.example.co.uk" and "www.example.co.uk" both key
// on "example.co.uk" instead of a naive u.Host, which would otherwise
// fragment politeness/scheduling state across subdomains of the same
// site. Falls back to the bare (stripped) hostname for inputs
// publicsuffix can't resolve, such as bare IPs or single-label hosts.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	h := strings.ToLower(u.Hostname())
	h = strings.TrimPrefix(h, "www.")

	if reg, err := publicsuffix.EffectiveTLDPlusOne(h); err == nil {
		return reg, nil
	}
	return h, nil
}

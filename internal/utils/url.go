package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&/=]*)`)

// rawHostRegex is used when url.Parse rejects a matched string.
var rawHostRegex = regexp.MustCompile(`^https?://([^/?#\s]+)`)

func ExtractURLs(content string) []string {
	if content == "" {
		return nil
	}
	return urlRegex.FindAllString(content, -1)
}

// HostOf returns the lower-cased, ASCII form of the URL host with any
// leading "www." removed. It returns "" when no host can be found.
func HostOf(raw string) string {
	host := ""
	if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
		host = parsed.Hostname()
	} else if m := rawHostRegex.FindStringSubmatch(raw); m != nil {
		host = m[1]
		if at := strings.LastIndex(host, "@"); at >= 0 {
			host = host[at+1:]
		}
		if colon := strings.Index(host, ":"); colon >= 0 {
			host = host[:colon]
		}
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.TrimPrefix(host, "www.")
}

// PathOf returns the lower-cased URL path without query or fragment.
func PathOf(raw string) string {
	if parsed, err := url.Parse(raw); err == nil {
		return strings.ToLower(parsed.Path)
	}
	cut := raw
	if i := strings.IndexAny(cut, "?#"); i >= 0 {
		cut = cut[:i]
	}
	return strings.ToLower(cut)
}

// DomainMatch reports whether host and domain are equal or one contains the
// other.
func DomainMatch(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.Contains(host, domain) || strings.Contains(domain, host)
}

// Package urlnorm validates and normalizes user input for bookmark records
// before it reaches storage: titles are trimmed, URLs are made absolute.
package urlnorm

import (
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	ErrEmptyURL   = errors.New("empty URL")
	ErrInvalidURL = errors.New("invalid URL")
	ErrEmptyTitle = errors.New("empty title")
)

var schemePrefix = regexp.MustCompile(`(?i)^https?://`)

// Normalize turns raw user input into an absolute http(s) URL.
// Bare domains get "https://" prefixed, and a missing path becomes "/",
// so "example.com" yields "https://example.com/".
func Normalize(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrEmptyURL
	}

	if !schemePrefix.MatchString(candidate) {
		if strings.Contains(candidate, "://") {
			return "", ErrInvalidURL
		}
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", ErrInvalidURL
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL
	}

	if !isValidHost(parsed.Hostname()) {
		return "", ErrInvalidURL
	}

	parsed.Host = strings.ToLower(parsed.Host)
	if port := parsed.Port(); (parsed.Scheme == "https" && port == "443") || (parsed.Scheme == "http" && port == "80") {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":"+port)
	}
	if parsed.Path == "" && parsed.RawPath == "" && parsed.Opaque == "" {
		parsed.Path = "/"
	}

	return parsed.String(), nil
}

// Title trims a bookmark title and rejects blank ones.
func Title(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", ErrEmptyTitle
	}

	return title, nil
}

// IsValid reports whether the URL is already absolute http(s) with a host.
func IsValid(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil &&
		(u.Scheme == "http" || u.Scheme == "https") &&
		isValidHost(u.Hostname())
}

func isValidHost(host string) bool {
	if host == "" {
		return false
	}

	if strings.Contains(host, ":") {
		return net.ParseIP(host) != nil
	}

	for _, r := range host {
		switch {
		case r == '.' || r == '-' || r == '_':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			return false
		}
	}

	return strings.Trim(host, ".") != ""
}

package util

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"shortlink/internal/model"
)

// ValidateURL reports whether raw is an absolute http(s) URL with a host that fits the
// original_url column.
func ValidateURL(raw string) bool {
	if raw == "" || len(raw) > model.MaxOriginalURLLen || strings.TrimSpace(raw) != raw {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// IsValidShortCode only checks the shape of a code: non-blank and exactly six characters.
func IsValidShortCode(code string) bool {
	if strings.TrimSpace(code) == "" {
		return false
	}
	return utf8.RuneCountInString(code) == model.ShortCodeLength
}

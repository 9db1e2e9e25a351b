// Package validate holds the boundary checks applied to request fields before
// any store access.
package validate

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxUsernameLength bounds usernames in characters.
	MaxUsernameLength = 15
	// MaxSocialLinks bounds the number of links on a profile.
	MaxSocialLinks = 5
	// MaxTokenLength bounds scanned token strings.
	MaxTokenLength = 256
	// MaxDisplayLength bounds name and affiliation strings.
	MaxDisplayLength = 100
)

// UUID reports whether s is a canonical hyphenated UUID.
func UUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Username reports whether s is a usable username.
func Username(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return utf8.RuneCountInString(s) <= MaxUsernameLength
}

// Secret reports whether s is a non-blank opaque credential.
func Secret(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Token reports whether s can be looked up as an exchange token.
func Token(s string) bool {
	return strings.TrimSpace(s) != "" && len(s) <= MaxTokenLength
}

// DisplayText reports whether s fits a name or affiliation field.
func DisplayText(s string) bool {
	return utf8.RuneCountInString(s) <= MaxDisplayLength
}

// LinkCount reports whether links fits the per-profile bound.
func LinkCount(links []string) bool {
	return len(links) <= MaxSocialLinks
}

// SocialLinks reports whether links is within bounds and every entry is an
// absolute http(s) URL.
func SocialLinks(links []string) bool {
	if !LinkCount(links) {
		return false
	}
	for _, link := range links {
		if !HTTPURL(link) {
			return false
		}
	}
	return true
}

// HTTPURL reports whether s parses as an absolute http or https URL.
func HTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

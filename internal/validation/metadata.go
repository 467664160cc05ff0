// metadata.go validates the user-supplied fields of a package record.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-version"
)

const (
	// DefaultVersion is assigned when a package is created without a version.
	DefaultVersion = "1.0.0"

	MaxNameLength            = 64
	MaxDescriptionLength     = 300
	MaxLongDescriptionLength = 20000
)

var (
	ErrInvalidName    = errors.New("invalid package name")
	ErrInvalidVersion = errors.New("invalid version")
	ErrFieldTooLong   = errors.New("field too long")
	ErrInvalidLink    = errors.New("invalid link")
)

var (
	nameRe    = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _.'()&+!-]{0,63}$`)
	versionRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// LinkKind names one of the external profile links a package may carry.
type LinkKind string

const (
	LinkKofi    LinkKind = "kofi"
	LinkPatreon LinkKind = "patreon"
	LinkDiscord LinkKind = "discord"
	LinkGitHub  LinkKind = "github"
	LinkYouTube LinkKind = "youtube"
)

var linkPatterns = map[LinkKind]*regexp.Regexp{
	LinkKofi:    regexp.MustCompile(`^https://(www\.)?ko-fi\.com/[A-Za-z0-9_]{1,64}/?$`),
	LinkPatreon: regexp.MustCompile(`^https://(www\.)?patreon\.com/[A-Za-z0-9_-]{1,64}/?$`),
	LinkDiscord: regexp.MustCompile(`^https://(discord\.gg|discord\.com/invite)/[A-Za-z0-9-]{2,32}/?$`),
	LinkGitHub:  regexp.MustCompile(`^https://github\.com/[A-Za-z0-9][A-Za-z0-9-]{0,38}(/[A-Za-z0-9._-]{1,100})?/?$`),
	LinkYouTube: regexp.MustCompile(`^https://((www\.)?youtube\.com/(@[A-Za-z0-9._-]{3,30}|channel/[A-Za-z0-9_-]{24}|c/[A-Za-z0-9._-]{1,100})|youtu\.be/[A-Za-z0-9_-]{11})/?$`),
}

// ValidateName trims name and checks it against the allowed character set.
// It returns the trimmed name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if !nameRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q must start with a letter or digit and be at most %d characters of letters, digits, spaces or _.'()&+!-",
			ErrInvalidName, name, MaxNameLength)
	}
	return name, nil
}

// NormalizeVersion returns DefaultVersion for an empty string, otherwise the trimmed version
// if it is a plain MAJOR.MINOR.PATCH triple.
func NormalizeVersion(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultVersion, nil
	}
	// go-version alone accepts "1.0" and pre-release suffixes.
	if !versionRe.MatchString(v) {
		return "", fmt.Errorf("%w: %q is not MAJOR.MINOR.PATCH", ErrInvalidVersion, v)
	}
	if _, err := version.NewVersion(v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	return v, nil
}

func ValidateDescription(s string) error {
	return checkLength("description", s, MaxDescriptionLength)
}

func ValidateLongDescription(s string) error {
	return checkLength("long_description", s, MaxLongDescriptionLength)
}

func checkLength(field, s string, limit int) error {
	if n := utf8.RuneCountInString(s); n > limit {
		return fmt.Errorf("%w: %s has %d characters, limit is %d", ErrFieldTooLong, field, n, limit)
	}
	return nil
}

// ValidateLink checks url against the pattern for kind. An empty url is valid and means
// the link is unset.
func ValidateLink(kind LinkKind, url string) error {
	if url == "" {
		return nil
	}
	re, ok := linkPatterns[kind]
	if !ok {
		return fmt.Errorf("%w: unknown link kind %q", ErrInvalidLink, kind)
	}
	if !re.MatchString(url) {
		return fmt.Errorf("%w: %q is not a valid %s URL", ErrInvalidLink, url, kind)
	}
	return nil
}

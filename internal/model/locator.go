package model

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidLocator is returned when a locator is not an absolute http(s) URL.
var ErrInvalidLocator = errors.New("locator must be an absolute http or https URL")

// ChallengesSegment is the first path segment of challenge pages on the platform.
const ChallengesSegment = "challenges"

// digitRun matches ASCII digit runs. Go's \d never matches non-ASCII digits.
var digitRun = regexp.MustCompile(`\d+`)

// ParseLocator parses raw as an absolute http or https URL.
func ParseLocator(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLocator, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, raw)
	}
	return u, nil
}

// SiteRoot returns scheme://host of u.
func SiteRoot(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// CanonicalFor builds the canonical locator of challenge id on the site of u.
func CanonicalFor(u *url.URL, id int) string {
	return fmt.Sprintf("%s/%s#-%d", SiteRoot(u), ChallengesSegment, id)
}

// Canonical returns the dedup key of a locator.
// Locators carrying an identifier map to scheme://host/challenges#-<id>.
// Anything else is returned in its parsed form, so Canonical is idempotent.
func Canonical(raw string) string {
	u, err := ParseLocator(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	if id, ok := ResolveID(u); ok {
		return CanonicalFor(u, id)
	}
	return u.String()
}

// ResolveID finds the challenge identifier of a locator.
// The last digit run of the fragment wins (#Fast-Puzzles-1-23 is 23);
// otherwise the numeric segment of /challenges/<id> is used.
func ResolveID(u *url.URL) (int, bool) {
	if runs := digitRun.FindAllString(u.Fragment, -1); len(runs) > 0 {
		if id, err := strconv.Atoi(runs[len(runs)-1]); err == nil {
			return id, true
		}
	}
	segments := PathSegments(u.Path)
	if len(segments) >= 2 && segments[0] == ChallengesSegment && isDigits(segments[1]) {
		if id, err := strconv.Atoi(segments[1]); err == nil {
			return id, true
		}
	}
	return 0, false
}

// FragmentID applies the listing-page heuristic to a fragment: the digits of
// the part after the last hyphen, with en-dashes removed.
func FragmentID(fragment string) (int, bool) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return 0, false
	}
	last := fragment
	if i := strings.LastIndex(fragment, "-"); i >= 0 {
		last = fragment[i+1:]
	}
	last = strings.ReplaceAll(strings.TrimSpace(last), "–", "")

	var digits strings.Builder
	for _, r := range last {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	id, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return id, true
}

// PathSegments splits a URL path into its non-empty segments.
func PathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// ParseDigits converts s to an int when it is a non-empty run of ASCII digits.
func ParseDigits(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

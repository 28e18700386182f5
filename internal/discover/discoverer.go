package discover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Pahihq/ctfd-parser/internal/ctfd"
	"github.com/Pahihq/ctfd-parser/internal/model"
	"github.com/Pahihq/ctfd-parser/internal/transport"
)

// ChallengeButtonSelector matches the buttons some platform themes render per challenge.
const ChallengeButtonSelector = "button.challenge-button[value]"

// Fetcher fetches a page through the shared transport.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
}

// Lister lists challenges through the platform API.
type Lister interface {
	ListChallenges(ctx context.Context, u *url.URL) ([]ctfd.ChallengeSummary, error)
}

// Discoverer resolves listing locators into challenge locators.
type Discoverer struct {
	fetcher Fetcher
	api     Lister
	logger  *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Discoverer) {
		d.logger = logger
	}
}

// New creates a Discoverer.
func New(fetcher Fetcher, api Lister, opts ...Option) *Discoverer {
	d := &Discoverer{
		fetcher: fetcher,
		api:     api,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsListing reports whether locator points at a challenge listing page.
func IsListing(locator string) bool {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/"+model.ChallengesSegment)
}

// Discover returns the sorted, deduplicated canonical locators of a listing.
// API errors are logged and trigger the HTML fallback; HTML errors are returned.
func (d *Discoverer) Discover(ctx context.Context, listing string) ([]string, error) {
	u, err := model.ParseLocator(listing)
	if err != nil {
		return nil, err
	}

	locators, err := d.fromAPI(ctx, u)
	switch {
	case err != nil:
		d.logger.Warn("challenge list API failed, falling back to HTML", "listing", listing, "error", err)
	case len(locators) == 0:
		d.logger.Warn("challenge list API returned nothing, falling back to HTML", "listing", listing)
	default:
		d.logger.Info("challenges discovered through the API", "listing", listing, "count", len(locators))
		return locators, nil
	}

	resp, err := d.fetcher.Get(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}
	locators, err = FromHTML(bytes.NewReader(resp.Body), u)
	if err != nil {
		return nil, err
	}
	d.logger.Info("challenges discovered from HTML", "listing", listing, "count", len(locators))
	return locators, nil
}

func (d *Discoverer) fromAPI(ctx context.Context, u *url.URL) ([]string, error) {
	summaries, err := d.api.ListChallenges(ctx, u)
	if err != nil {
		return nil, err
	}
	set := newLocatorSet()
	for _, s := range summaries {
		set.add(model.CanonicalFor(u, s.ID.Value))
	}
	return set.sorted(), nil
}

// FromHTML applies the listing heuristics to a listing page.
func FromHTML(r io.Reader, listing *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	set := newLocatorSet()

	if id, ok := model.FragmentID(listing.Fragment); ok {
		set.add(model.CanonicalFor(listing, id))
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if loc, ok := anchorLocator(s.AttrOr("href", ""), listing); ok {
			set.add(loc)
		}
	})

	doc.Find(ChallengeButtonSelector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := model.ParseDigits(s.AttrOr("value", "")); ok {
			set.add(model.CanonicalFor(listing, id))
		}
	})

	return set.sorted(), nil
}

// anchorLocator maps a same-host link under /challenges to a canonical locator.
// /challenges/<n> uses n; a bare /challenges link uses its fragment.
func anchorLocator(href string, listing *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := listing.ResolveReference(ref)
	if abs.Host != listing.Host {
		return "", false
	}

	segments := model.PathSegments(abs.Path)
	if len(segments) == 0 || segments[0] != model.ChallengesSegment {
		return "", false
	}
	if len(segments) >= 2 {
		if id, ok := model.ParseDigits(segments[1]); ok {
			return model.CanonicalFor(abs, id), true
		}
		return "", false
	}
	if id, ok := model.FragmentID(abs.Fragment); ok {
		return model.CanonicalFor(abs, id), true
	}
	return "", false
}

type locatorSet map[string]struct{}

func newLocatorSet() locatorSet {
	return make(locatorSet)
}

func (s locatorSet) add(locator string) {
	s[locator] = struct{}{}
}

func (s locatorSet) sorted() []string {
	out := make([]string, 0, len(s))
	for loc := range s {
		out = append(out, loc)
	}
	slices.Sort(out)
	return out
}

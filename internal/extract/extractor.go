package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Pahihq/ctfd-parser/internal/ctfd"
	"github.com/Pahihq/ctfd-parser/internal/model"
	"github.com/Pahihq/ctfd-parser/internal/transport"
)

// Fetcher fetches a page through the shared transport.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
}

// DetailAPI looks up a challenge payload by id.
type DetailAPI interface {
	Challenge(ctx context.Context, u *url.URL, id int) ctfd.Lookup
}

// Extractor builds challenge records from locators.
type Extractor struct {
	fetcher    Fetcher
	api        DetailAPI
	strategies Strategies
	logger     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the HTML fallback strategies.
func WithStrategies(s Strategies) Option {
	return func(e *Extractor) {
		e.strategies = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor using DefaultStrategies.
func New(fetcher Fetcher, api DetailAPI, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:    fetcher,
		api:        api,
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches the challenge page and builds its record.
// Failing to fetch or parse the page is fatal; a failing API lookup is not.
func (e *Extractor) Extract(ctx context.Context, locator string) (*model.Extraction, error) {
	u, err := model.ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	resp, err := e.fetcher.Get(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challenge page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge page: %w", err)
	}

	out := &model.Extraction{
		Record: model.ChallengeRecord{Source: locator},
		Page:   resp.Body,
		Source: model.SourceHTML,
	}

	var detail *ctfd.ChallengeDetail
	if id, ok := model.ResolveID(u); ok {
		out.Record.ID = &id

		lookup := e.api.Challenge(ctx, u, id)
		switch lookup.Status {
		case ctfd.LookupOK:
			detail = lookup.Detail
		case ctfd.LookupHardFailure:
			return nil, fmt.Errorf("challenge %d lookup aborted: %w", id, lookup.Reason)
		default:
			e.logger.Warn("challenge API lookup failed, using HTML",
				"locator", locator,
				"id", id,
				"reason", lookup.Reason,
			)
		}
	}

	if detail != nil {
		e.fillFromDetail(&out.Record, doc, u, detail)
		out.Source = model.SourceAPI
	} else {
		e.fillFromHTML(&out.Record, doc, u)
	}

	e.logger.Debug("challenge extracted",
		"locator", locator,
		"title", out.Record.Title,
		"source", out.Source,
		"attachments", len(out.Record.Attachments),
	)
	return out, nil
}

func (e *Extractor) fillFromDetail(rec *model.ChallengeRecord, doc *goquery.Document, u *url.URL, d *ctfd.ChallengeDetail) {
	name := d.Name
	if strings.TrimSpace(name) == "" {
		name = FirstText(doc, e.strategies.Title)
	}
	rec.Name = d.Name
	rec.Category = d.Category
	rec.Title = model.TitleWithCategory(name, d.Category)
	rec.Points = d.Points()

	if d.Description != "" {
		rec.Description = HTMLToText(d.Description)
	} else {
		rec.Description = FirstText(doc, e.strategies.Description)
	}

	root := &url.URL{Scheme: u.Scheme, Host: u.Host}
	for _, ref := range d.Files {
		if ref == "" {
			continue
		}
		refURL, err := url.Parse(ref)
		if err != nil {
			e.logger.Warn("skipping unparsable file reference", "ref", ref, "error", err)
			continue
		}
		rec.Attachments = append(rec.Attachments, model.Attachment{
			Filename: model.SafeName(basename(refURL.Path), model.DefaultFilename),
			URL:      root.ResolveReference(refURL).String(),
		})
	}
}

func (e *Extractor) fillFromHTML(rec *model.ChallengeRecord, doc *goquery.Document, u *url.URL) {
	rec.Title = FirstText(doc, e.strategies.Title)
	rec.Description = FirstText(doc, e.strategies.Description)
	rec.Attachments = e.pageAttachments(doc, u)
}

// pageAttachments resolves the anchors chosen by the link strategies,
// deduplicated by absolute URL without fragment.
func (e *Extractor) pageAttachments(doc *goquery.Document, base *url.URL) []model.Attachment {
	links := FirstLinks(doc, e.strategies.Attachments)
	if links == nil {
		return nil
	}

	var out []model.Attachment
	seen := make(map[string]struct{})
	links.Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment, abs.RawFragment = "", ""

		key := abs.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		urlBase := basename(abs.Path)
		name := a.AttrOr("download", "")
		if strings.TrimSpace(name) == "" {
			name = strings.Join(strings.Fields(a.Text()), " ")
		}
		if name == "" {
			name = urlBase
		}
		fallback := urlBase
		if fallback == "" {
			fallback = model.DefaultFilename
		}
		out = append(out, model.Attachment{
			Filename: model.SafeName(name, fallback),
			URL:      key,
		})
	})
	return out
}

// basename returns the part of a slash-separated path after the last slash,
// which is empty for paths ending in a slash.
func basename(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

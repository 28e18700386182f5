package ctfd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Pahihq/ctfd-parser/internal/model"
)

// JSONGetter fetches a URL and decodes its JSON body.
// *transport.Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// API talks to the platform's /api/v1 endpoints.
type API struct {
	client JSONGetter
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// New creates an API client on top of a shared transport.
func New(client JSONGetter, opts ...Option) *API {
	a := &API{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// APIRoot returns scheme://host/api/v1 for any locator on the site.
func APIRoot(u *url.URL) string {
	return model.SiteRoot(u) + "/api/v1"
}

// FlexibleID decodes an id given either as a JSON integer or as a digit string.
// Anything else decodes without error but leaves Valid unset.
type FlexibleID struct {
	Value int
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	*f = FlexibleID{}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f.Value, f.Valid = model.ParseDigits(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err == nil && n >= 0 {
		f.Value, f.Valid = n, true
	}
	return nil
}

// ChallengeSummary is one entry of the challenge list.
type ChallengeSummary struct {
	ID       FlexibleID  `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Value    json.Number `json:"value"`
}

// ChallengeDetail is the payload of /api/v1/challenges/{id}.
type ChallengeDetail struct {
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Value    json.Number `json:"value"`

	// Description is HTML.
	Description string `json:"description"`

	// Files are site-relative download paths, usually carrying a token query.
	Files []string `json:"files"`
}

// Points returns the challenge value when it is an integer.
func (d *ChallengeDetail) Points() *int {
	if d.Value == "" {
		return nil
	}
	n, err := d.Value.Int64()
	if err != nil {
		return nil
	}
	points := int(n)
	return &points
}

func (d *ChallengeDetail) empty() bool {
	return strings.TrimSpace(d.Name) == "" &&
		strings.TrimSpace(d.Category) == "" &&
		d.Value == "" &&
		strings.TrimSpace(d.Description) == "" &&
		len(d.Files) == 0
}

type listEnvelope struct {
	Success bool               `json:"success"`
	Data    []ChallengeSummary `json:"data"`
}

type detailEnvelope struct {
	Success bool             `json:"success"`
	Data    *ChallengeDetail `json:"data"`
}

// ListChallenges returns the challenges visible to the current session.
// Entries without a usable numeric id are dropped.
func (a *API) ListChallenges(ctx context.Context, u *url.URL) ([]ChallengeSummary, error) {
	endpoint := APIRoot(u) + "/challenges"
	a.logger.Debug("listing challenges through the API", "url", endpoint)

	var env listEnvelope
	if err := a.client.GetJSON(ctx, endpoint, &env); err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", ErrNotSuccessful, endpoint)
	}

	summaries := make([]ChallengeSummary, 0, len(env.Data))
	for _, s := range env.Data {
		if s.ID.Valid {
			summaries = append(summaries, s)
		}
	}
	a.logger.Debug("challenges listed through the API", "count", len(summaries))
	return summaries, nil
}

// LookupStatus classifies the result of a detail lookup.
type LookupStatus int

const (
	// LookupOK means Detail is set.
	LookupOK LookupStatus = iota
	// LookupSoftFailure means the API could not help; callers fall back to HTML.
	LookupSoftFailure
	// LookupHardFailure means the run was cancelled; callers must stop.
	LookupHardFailure
)

// String returns the status name.
func (s LookupStatus) String() string {
	switch s {
	case LookupOK:
		return "ok"
	case LookupSoftFailure:
		return "soft-failure"
	case LookupHardFailure:
		return "hard-failure"
	default:
		return "unknown"
	}
}

// Lookup is the result of Challenge.
type Lookup struct {
	Status LookupStatus
	Detail *ChallengeDetail
	// Reason is set for both failure variants.
	Reason error
}

// Challenge fetches the detail payload of challenge id.
// Transport, decode and envelope errors are soft failures; only a done
// context is a hard failure.
func (a *API) Challenge(ctx context.Context, u *url.URL, id int) Lookup {
	endpoint := fmt.Sprintf("%s/challenges/%d", APIRoot(u), id)

	var env detailEnvelope
	if err := a.client.GetJSON(ctx, endpoint, &env); err != nil {
		if ctx.Err() != nil {
			return Lookup{Status: LookupHardFailure, Reason: err}
		}
		return Lookup{Status: LookupSoftFailure, Reason: err}
	}
	if !env.Success {
		return Lookup{Status: LookupSoftFailure, Reason: fmt.Errorf("%w: %s", ErrNotSuccessful, endpoint)}
	}
	if env.Data == nil || env.Data.empty() {
		return Lookup{Status: LookupSoftFailure, Reason: fmt.Errorf("%w: %s", ErrEmptyPayload, endpoint)}
	}
	return Lookup{Status: LookupOK, Detail: env.Data}
}

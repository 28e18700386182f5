package auth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Pahihq/ctfd-parser/internal/model"
	"github.com/Pahihq/ctfd-parser/internal/transport"
)

// Candidate input names, in order of preference.
var (
	UsernameFields = []string{"name", "username", "email", "login"}
	PasswordFields = []string{"password", "pass", "pwd"}
)

// Client is the part of the shared transport the login needs.
type Client interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
	PostForm(ctx context.Context, rawURL string, form map[string]string) (*transport.Response, error)
}

// Result describes a submitted login.
type Result struct {
	ActionURL     string
	FinalURL      string
	UsernameField string
	PasswordField string

	// StillOnLogin is set when the final URL still points at a login page,
	// which usually means the credentials were rejected.
	StillOnLogin bool
}

// Authenticator logs into the platform through its HTML login form.
type Authenticator struct {
	client Client
	logger *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// New creates an Authenticator.
func New(client Client, opts ...Option) *Authenticator {
	a := &Authenticator{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultLoginURL returns scheme://host/login for any locator on the site.
func DefaultLoginURL(locator string) (string, error) {
	u, err := model.ParseLocator(locator)
	if err != nil {
		return "", err
	}
	return model.SiteRoot(u) + "/login", nil
}

// Login submits username and password through the form at loginURL.
// Landing back on a login page is reported in the result and logged, not
// returned as an error.
func (a *Authenticator) Login(ctx context.Context, loginURL, username, password string) (*Result, error) {
	pageURL, err := model.ParseLocator(loginURL)
	if err != nil {
		return nil, err
	}

	a.logger.Info("fetching login page", "url", loginURL)
	page, err := a.client.Get(ctx, loginURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch login page: %w", err)
	}

	base := pageURL
	if final, err := url.Parse(page.URL); err == nil && final.Host != "" {
		base = final
	}
	form, err := ParseForm(bytes.NewReader(page.Body), base)
	if err != nil {
		return nil, err
	}

	userField, okUser := form.FirstPresent(UsernameFields)
	passField, okPass := form.FirstPresent(PasswordFields)
	if !okUser || !okPass {
		return nil, fmt.Errorf("%w: form fields %v", ErrFieldsNotDetected, form.FieldNames())
	}

	values := form.Values()
	values[userField] = username
	values[passField] = password

	a.logger.Info("submitting login form",
		"action", form.Action,
		"method", form.Method,
		"userField", userField,
		"passwordField", passField,
	)
	resp, err := a.submit(ctx, form, values)
	if err != nil {
		return nil, fmt.Errorf("failed to submit login form: %w", err)
	}

	result := &Result{
		ActionURL:     form.Action,
		FinalURL:      resp.URL,
		UsernameField: userField,
		PasswordField: passField,
		StillOnLogin:  strings.Contains(resp.URL, "/login"),
	}
	if result.StillOnLogin {
		a.logger.Warn("login probably failed, still on the login page", "url", resp.URL)
	} else {
		a.logger.Info("login probably succeeded", "url", resp.URL)
	}
	return result, nil
}

func (a *Authenticator) submit(ctx context.Context, form *Form, values map[string]string) (*transport.Response, error) {
	if form.Method != http.MethodGet {
		return a.client.PostForm(ctx, form.Action, values)
	}
	target, err := form.QueryURL(values)
	if err != nil {
		return nil, err
	}
	return a.client.Get(ctx, target)
}

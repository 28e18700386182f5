package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a whole request, including reading the body.
	DefaultTimeout = 20 * time.Second

	// DefaultUserAgent is sent unless WithUserAgent overrides it.
	DefaultUserAgent = "ctfdump"

	// DefaultAcceptLanguage is sent with every request.
	DefaultAcceptLanguage = "en,ru;q=0.8"

	// maxRedirects stops redirect loops while allowing login flows.
	maxRedirects = 10
)

// Response is a fully read HTTP response.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the shared, concurrency-safe HTTP client of a run.
type Client struct {
	http   *resty.Client
	jar    http.CookieJar
	logger *slog.Logger

	timeout    time.Duration
	userAgent  string
	cookie     string
	headers    map[string]string
	credHost   string
	proxyURL   string
	rateLimit  float64
	cloudflare bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCookie sets a raw cookie string ("a=1; b=2") sent with every request.
func WithCookie(raw string) Option {
	return func(c *Client) {
		c.cookie = FormatCookieHeader(ParseCookieHeader(raw))
	}
}

// WithToken sends "Authorization: Token <token>" with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		c.setHeader("Authorization", "Token "+token)
	}
}

// WithHeaders adds extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.setHeader(k, v)
		}
	}
}

// WithCredentialHost limits the cookie, token and extra headers to requests
// for host (host[:port]). Redirects and attachments on other hosts go out
// without them. An empty host sends them everywhere.
func WithCredentialHost(host string) Option {
	return func(c *Client) {
		c.credHost = strings.ToLower(strings.TrimSpace(host))
	}
}

// WithProxy routes requests through an http, https, socks5 or socks5h proxy.
func WithProxy(rawURL string) Option {
	return func(c *Client) {
		c.proxyURL = strings.TrimSpace(rawURL)
	}
}

// WithRateLimit paces requests to at most rps per second. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.rateLimit = rps
	}
}

// WithCloudflareBypass wraps the transport with browser-like TLS and headers.
func WithCloudflareBypass(enabled bool) Option {
	return func(c *Client) {
		c.cloudflare = enabled
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func (c *Client) setHeader(key, value string) {
	if c.headers == nil {
		c.headers = make(map[string]string)
	}
	c.headers[http.CanonicalHeaderKey(key)] = value
}

// New creates a Client. Nothing is dialed until the first request.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := applyProxy(base, c.proxyURL); err != nil {
		return nil, err
	}

	var rt http.RoundTripper = base
	if c.cloudflare {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}
	if c.cookie != "" || len(c.headers) > 0 {
		rt = &credentialTransport{base: rt, host: c.credHost, cookie: c.cookie, headers: c.headers}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c.jar = jar

	c.http = resty.NewWithClient(&http.Client{Transport: rt, Jar: jar}).
		SetTimeout(c.timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects)).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Accept-Language", DefaultAcceptLanguage).
		SetLogger(restyLogger{logger: c.logger})

	if c.rateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(c.rateLimit), 1)
		c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return c, nil
}

// applyProxy points the transport at the given proxy, if any.
func applyProxy(t *http.Transport, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidProxy, raw)
	}

	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProxy, err)
		}
		t.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	return nil
}

// Get fetches rawURL, following redirects.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	c.logger.Debug("GET", "url", rawURL)
	res, err := c.http.R().SetContext(ctx).Get(rawURL)
	return c.finish(rawURL, res, err)
}

// GetJSON fetches rawURL as JSON and decodes the body into v.
// Some platform versions only answer with JSON when the request carries a
// JSON content type, so it is set even though the request has no body.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	c.logger.Debug("GET json", "url", rawURL)
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		Get(rawURL)
	resp, err := c.finish(rawURL, res, err)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, rawURL, err)
	}
	return nil
}

// PostForm submits form as application/x-www-form-urlencoded and follows redirects.
func (c *Client) PostForm(ctx context.Context, rawURL string, form map[string]string) (*Response, error) {
	c.logger.Debug("POST form", "url", rawURL, "fields", len(form))
	res, err := c.http.R().SetContext(ctx).SetFormData(form).Post(rawURL)
	return c.finish(rawURL, res, err)
}

// Cookies returns the session cookies the jar holds for u.
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	return c.jar.Cookies(u)
}

func (c *Client) finish(rawURL string, res *resty.Response, err error) (*Response, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequest, rawURL, err)
	}

	out := &Response{
		URL:        rawURL,
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		out.URL = res.RawResponse.Request.URL.String()
	}
	if out.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: out.URL, StatusCode: out.StatusCode}
	}
	return out, nil
}

// credentialTransport injects the configured cookie and headers into
// requests for host, or into every request when host is empty.
type credentialTransport struct {
	base    http.RoundTripper
	host    string
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *credentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.host != "" && !strings.EqualFold(req.URL.Host, t.host) {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}

// restyLogger forwards resty's internal messages to slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "resty")
}

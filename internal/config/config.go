package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultOutputDir is where challenges are written unless --output is set.
	DefaultOutputDir = "ctf_dump"

	// DefaultConcurrency is the number of challenges processed at once.
	// Platforms tend to rate limit aggressive clients, so it stays low.
	DefaultConcurrency = 5

	// DefaultTimeout bounds every request, including reading the body.
	DefaultTimeout = 20 * time.Second

	// AppName is the application name used for XDG directory paths.
	AppName = "ctfdump"
)

// Config holds all options of a dump run.
// It is populated from CLI flags and the site file and passed down explicitly.
type Config struct {
	// Targets are listing or challenge locators given on the command line.
	Targets []string

	// Username and Password enable the form login when both are set.
	Username string
	Password string

	// LoginURL overrides scheme://host/login of the first target.
	LoginURL string

	// Token is sent as "Authorization: Token <token>".
	Token string

	// Cookie is a raw Cookie header value, "name=value; other=value".
	Cookie string

	// Headers are extra request headers.
	Headers map[string]string

	// OutputDir is the output root.
	OutputDir string

	// Concurrency bounds the number of challenges in flight.
	Concurrency int

	SaveHTML bool
	NoFiles  bool
	NoDesc   bool

	// Timeout bounds every request.
	Timeout time.Duration

	// Proxy is an http, https, socks5 or socks5h proxy URL.
	Proxy string

	// Rate limits requests per second; zero disables pacing.
	Rate float64

	// Cloudflare enables the browser-like TLS transport.
	Cloudflare bool

	// NoArchive skips zipping the output root.
	NoArchive bool

	// NoHistory skips recording the run in the history database.
	NoHistory bool

	// JSONReport prints the run report as JSON instead of a table.
	JSONReport bool

	// JSONOut is a file that also receives the run report as JSON.
	JSONOut string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the site file given with --config.
	ConfigFilePath string

	// SiteConfigs holds the loaded site file, if any.
	SiteConfigs *File

	// DBDir holds the history database.
	// Defaults to the XDG data directory (~/.local/share/ctfdump on Linux).
	DBDir string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:   DefaultOutputDir,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		DBDir:       XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for ctfdump.
// On Linux: ~/.local/share/ctfdump
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for ctfdump.
// On Linux: ~/.config/ctfdump
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Rate < 0 {
		return ErrInvalidRate
	}
	if c.Proxy != "" && !validProxy(c.Proxy) {
		return ErrInvalidProxy
	}
	return nil
}

// Login reports whether the form login should run.
func (c *Config) Login() bool {
	return c.Username != "" && c.Password != ""
}

func validProxy(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		return true
	default:
		return false
	}
}

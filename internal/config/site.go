package config

import (
	"fmt"
	"maps"

	"dario.cat/mergo"
)

// SiteConfig holds the settings of one platform.
// Boolean switches are pointers so a site entry can turn off a default.
type SiteConfig struct {
	// Cookie is a raw Cookie header value.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Token is a platform API access token.
	Token string `yaml:"token,omitempty"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	LoginURL string `yaml:"login_url,omitempty"`

	// Headers are extra request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	Concurrency int    `yaml:"concurrency,omitempty"`
	Proxy       string `yaml:"proxy,omitempty"`

	SaveHTML *bool `yaml:"save_html,omitempty"`
	NoFiles  *bool `yaml:"no_files,omitempty"`
	NoDesc   *bool `yaml:"no_desc,omitempty"`
}

// File represents the structure of the .ctfdump site file.
type File struct {
	// Sites maps a platform host, with port if any, to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the settings for host: the site entry merged over
// the defaults. Pointers are replaced rather than written through, so the
// defaults are never modified.
func (cf *File) GetSiteConfig(host string) (SiteConfig, error) {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.Sites[host]
	if !ok {
		return result, nil
	}
	if err := mergo.Merge(&result, site, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return SiteConfig{}, fmt.Errorf("failed to merge site config for %s: %w", host, err)
	}
	return result, nil
}

// Flag names ApplySite checks before overriding a value.
const (
	FlagCookie      = "cookie"
	FlagToken       = "token"
	FlagUsername    = "username"
	FlagPassword    = "password"
	FlagLoginURL    = "login-url"
	FlagConcurrency = "concurrency"
	FlagProxy       = "proxy"
	FlagSaveHTML    = "save-html"
	FlagNoFiles     = "no-files"
	FlagNoDesc      = "no-desc"
)

// ApplySite copies site settings into c. Settings whose flag was given
// explicitly, as reported by changed, are left alone. Headers from the site
// file are added unless c already has the same header.
func (c *Config) ApplySite(sc SiteConfig, changed func(flag string) bool) {
	setString := func(flag string, dst *string, v string) {
		if v != "" && !changed(flag) {
			*dst = v
		}
	}
	setBool := func(flag string, dst *bool, v *bool) {
		if v != nil && !changed(flag) {
			*dst = *v
		}
	}

	setString(FlagCookie, &c.Cookie, sc.Cookie)
	setString(FlagToken, &c.Token, sc.Token)
	setString(FlagUsername, &c.Username, sc.Username)
	setString(FlagPassword, &c.Password, sc.Password)
	setString(FlagLoginURL, &c.LoginURL, sc.LoginURL)
	setString(FlagProxy, &c.Proxy, sc.Proxy)
	if sc.Concurrency > 0 && !changed(FlagConcurrency) {
		c.Concurrency = sc.Concurrency
	}
	setBool(FlagSaveHTML, &c.SaveHTML, sc.SaveHTML)
	setBool(FlagNoFiles, &c.NoFiles, sc.NoFiles)
	setBool(FlagNoDesc, &c.NoDesc, sc.NoDesc)

	if len(sc.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(sc.Headers))
		}
		for k, v := range sc.Headers {
			if _, ok := c.Headers[k]; !ok {
				c.Headers[k] = v
			}
		}
	}
}

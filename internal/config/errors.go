package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTargets is returned when no locator is given.
	ErrNoTargets = errors.New("no target specified: provide a challenge or listing URL")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidProxy is returned for a proxy URL that is not http, https, socks5 or socks5h.
	ErrInvalidProxy = errors.New("invalid proxy: must be an http, https, socks5 or socks5h URL")

	// ErrInvalidRate is returned when the request rate is negative.
	ErrInvalidRate = errors.New("invalid rate: must be non-negative")
)

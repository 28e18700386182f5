// Package log provides slog logging that never prints platform credentials.
//
// Dump runs handle passwords, API tokens, session cookies and download URLs
// carrying per-user tokens. SecureHandler masks all of them, even in
// verbose mode, so logs can be shared when reporting a problem.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose, false)
//	slog.SetDefault(logger)
//
//	logger.Info("downloading attachment",
//	    "url", "https://ctf.example.com/files/a.bin?token=abc", // token=***REDACTED***
//	    "cookie", "session=abc123",                               // ***REDACTED***
//	)
package log

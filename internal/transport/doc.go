// Package transport provides the shared HTTP client used for every request
// of a dump run.
//
// A single Client is created per run and handed to every component that
// talks to the platform. It is safe for concurrent use: the underlying
// resty client, cookie jar and connection pool are shared by all tasks, so
// a session obtained by logging in once is visible to every extraction.
//
// Credential material (a raw cookie string, an API token, extra headers) is
// injected by a RoundTripper wrapper, which means it is also present on
// redirect hops and attachment downloads.
package transport

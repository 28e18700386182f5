// Package pipeline runs a dump from targets to saved challenges.
//
// A Pipeline executes ordered steps against a model.RunReport: login,
// resolve (discovery and dedup), scrape, index, archive and history.
// The scrape step fans out over challenge locators through a
// BatchProcessor, which bounds concurrency with errgroup and isolates
// per-challenge failures.
package pipeline

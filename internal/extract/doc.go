// Package extract turns one challenge locator into a normalized record.
//
// The challenge page is always fetched. When the locator carries an id the
// per-challenge API payload is preferred; any API problem short of a
// cancelled run falls back to reading the page with ordered strategy lists
// (see Strategies), where the first strategy yielding a non-empty result
// wins.
package extract

// Package discover turns a challenge listing locator into the set of
// canonical challenge locators it refers to.
//
// The platform API is asked first. When it fails, reports failure or lists
// nothing, the listing page itself is fetched and three HTML heuristics are
// unioned: the listing's own fragment, same-host anchors under /challenges,
// and challenge buttons carrying a numeric value.
package discover

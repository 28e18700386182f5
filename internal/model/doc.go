// Package model defines the data structures shared by the ctfdump packages.
//
// The main types are:
//   - ChallengeRecord: normalized metadata and attachments of one challenge
//   - Extraction: a record plus the raw page it was read from
//   - Outcome: a record after it was written to disk
//   - RunReport: everything one dump run produced
//
// The package also owns the two pure functions every other package relies on:
// locator canonicalization (Canonical, ResolveID, FragmentID) and
// filesystem name sanitization (SafeName).
package model

// Package database provides the SQLite run history of ctfdump.
//
// Every dump run is stored with its outcomes and the sha3-256 digests of
// the attachments it saved, so later runs and the history command can tell
// what was mirrored when.
//
// modernc.org/sqlite is used because it is a pure Go driver: the binary
// cross-compiles without cgo and the database is a single file under the
// XDG data directory.
package database

// Package main provides the entry point for the ctfdump CLI.
//
// ctfdump mirrors the challenge catalogue of a CTFd-style competition
// platform to local storage: descriptions, attachments and an INDEX.md
// manifest, optionally zipped.
//
// Usage:
//
//	ctfdump dump https://ctf.example.com/challenges
//	ctfdump history
//
// See --help for all available options.
package main

func main() {
	Execute()
}

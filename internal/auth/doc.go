// Package auth performs the optional form-based login that precedes a dump.
//
// The login page is fetched, its first <form> is read, and the username and
// password fields are detected by name from small candidate lists. Every
// other input (CSRF nonce, hidden fields) is submitted with its default
// value. Session cookies end up in the shared transport's jar.
package auth

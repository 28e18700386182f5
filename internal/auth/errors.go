package auth

import "errors"

// Login errors.
var (
	// ErrFormNotFound is returned when the login page has no <form>.
	ErrFormNotFound = errors.New("no form found on the login page")

	// ErrFieldsNotDetected is returned when the form lacks a recognizable
	// username or password input.
	ErrFieldsNotDetected = errors.New("cannot detect username and password fields")
)

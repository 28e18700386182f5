package pipeline

import "errors"

var (
	// ErrNoLocators is returned by steps that need at least one target.
	ErrNoLocators = errors.New("no challenge locators")

	// errNoOutcome guards against tasks returning neither outcome nor error.
	errNoOutcome = errors.New("task produced no outcome")
)

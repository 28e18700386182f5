package ctfd

import "errors"

// API errors.
var (
	// ErrNotSuccessful is returned when the API envelope does not report success.
	ErrNotSuccessful = errors.New("api reported success=false")

	// ErrEmptyPayload is returned when a successful envelope carries no data.
	ErrEmptyPayload = errors.New("api returned an empty payload")
)

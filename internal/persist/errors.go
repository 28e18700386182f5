package persist

import "errors"

var (
	// ErrDownload is returned when an attachment could not be fetched.
	ErrDownload = errors.New("failed to download attachment")

	// ErrWrite is returned when a file or directory could not be written.
	ErrWrite = errors.New("failed to write challenge files")
)

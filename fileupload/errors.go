package fileupload

import "errors"

// Every Failed state carries an error wrapping exactly one of these kinds.
var (
	// ErrConfiguration is a malformed URL or otherwise unusable Config.
	ErrConfiguration = errors.New("invalid upload configuration")
	// ErrFileAccess is a missing, unreadable or resized file.
	ErrFileAccess = errors.New("file access failed")
	// ErrNetwork is a connect, timeout or transport failure.
	ErrNetwork = errors.New("network request failed")
)

// ErrOddHeaderList is returned by Builder.Build when Headers got a trailing name without a value.
var ErrOddHeaderList = errors.New("headers must be name/value pairs")

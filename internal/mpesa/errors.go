package mpesa

import "errors"

var (
	// ErrAuthentication marks a failed or unusable credential fetch.
	ErrAuthentication = errors.New("mpesa authentication failed")
	// ErrTransient marks a transport failure, timeout or 5xx from the
	// provider; the caller may retry.
	ErrTransient = errors.New("transient mpesa error")
	// ErrRejected marks an explicit application-level decline from the
	// provider; retrying risks a duplicate authorization.
	ErrRejected = errors.New("mpesa request rejected")
)

package source

import (
	"errors"
	"fmt"
)

// ConnectionError indicates that a mailbox session could not be
// established after all retry attempts. It wraps the last underlying
// cause. Credentials are never part of the message.
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf(
		"connection to %s failed after %d attempt(s): %v",
		e.Addr, e.Attempts, e.Err,
	)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// FetchError indicates that a single message or search could not be
// retrieved. The session stays usable.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

package imagesource

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyLocator is returned for a blank locator.
	ErrEmptyLocator = errors.New("empty locator")

	// ErrUnsupportedScheme is returned for URLs other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
)

// LocatorError reports that a picture could not be opened: a malformed
// locator, a missing file or a failed fetch.
type LocatorError struct {
	Locator string
	Err     error
}

func (e *LocatorError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Locator, e.Err)
}

func (e *LocatorError) Unwrap() error { return e.Err }

// DecodeError reports that bytes were read but are not a valid picture.
type DecodeError struct {
	Locator string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Locator, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorKind classifies err for metrics and logs: "locator", "decode" or
// "other".
func ErrorKind(err error) string {
	var le *LocatorError
	if errors.As(err, &le) {
		return "locator"
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return "decode"
	}
	return "other"
}

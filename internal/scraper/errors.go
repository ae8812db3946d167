package scraper

import (
	"errors"
	"fmt"
)

// NetworkError reports a failed fetch: transport failure, timeout or a
// non-2xx status (StatusCode is 0 when no response arrived).
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError reports markup or text that could not be interpreted.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return "parse: " + e.Err.Error()
	}
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

package feed

import (
	"errors"
	"fmt"
)

// ErrEmptyFeed is returned when a feed parses cleanly but contains no
// calendar entries.
var ErrEmptyFeed = errors.New("feed contains no events")

// FetchError indicates a network or HTTP-level failure retrieving a feed.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching feed %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError indicates the fetched document is not a well-formed calendar.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing feed %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

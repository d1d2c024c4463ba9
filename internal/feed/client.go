// Package feed fetches external iCal calendar documents and normalizes
// their entries into canonical event records.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	defaultTimeout = 30 * time.Second
	maxRedirects   = 5
	maxBodyBytes   = 10 << 20 // 10 MiB; booking feeds are far smaller
)

// RawEntry is one VEVENT as read off the wire, before normalization.
type RawEntry struct {
	UID         string
	Summary     string
	Description string
	Status      string
	Start       time.Time
	End         time.Time
}

// Client fetches and parses iCal feeds.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a feed client with a bounded timeout and redirect count.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Fetch downloads and parses the feed at url. It returns a FetchError on
// network/HTTP failure, a ParseError on malformed documents, and
// ErrEmptyFeed if the document contains no VEVENTs.
func (c *Client) Fetch(ctx context.Context, url string) ([]RawEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "text/calendar, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	entries, err := c.parse(body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}
	if len(entries) == 0 {
		return nil, ErrEmptyFeed
	}

	return entries, nil
}

// parse decodes an ICS payload into raw entries. Entries without a UID
// or without both dates are skipped rather than failing the whole feed.
func (c *Client) parse(body []byte) ([]RawEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var entries []RawEntry
	for _, ve := range cal.Events() {
		entry, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func parseVEvent(ve *ical.VEvent) (RawEntry, bool) {
	var entry RawEntry

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return entry, false
	}
	entry.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		entry.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		entry.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		entry.Status = p.Value
	}

	// Rental feeds publish all-day DATE values; fall back to the
	// all-day accessors when the timed ones reject the format.
	start, err := ve.GetStartAt()
	if err != nil {
		start, err = ve.GetAllDayStartAt()
	}
	if err != nil || start.IsZero() {
		return entry, false
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end, err = ve.GetAllDayEndAt()
	}
	if err != nil || end.IsZero() {
		return entry, false
	}

	entry.Start = start
	entry.End = end
	return entry, true
}

// ValidationResult reports the outcome of a side-effect-free feed check.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	EventCount int    `json:"event_count"`
	Error      string `json:"error,omitempty"`
}

// Validate performs a fetch+parse and reports the outcome without any
// side effects. Used when a connection is registered or edited.
func (c *Client) Validate(ctx context.Context, url string) ValidationResult {
	entries, err := c.Fetch(ctx, url)
	if err != nil {
		// An empty-but-valid feed is a usable connection; a property
		// with no upcoming bookings has an empty calendar.
		if errors.Is(err, ErrEmptyFeed) {
			return ValidationResult{Valid: true, EventCount: 0}
		}
		return ValidationResult{Valid: false, Error: err.Error()}
	}

	return ValidationResult{Valid: true, EventCount: len(entries)}
}

// RedactURL strips query parameters, which often carry feed tokens, so
// URLs can be logged safely.
func RedactURL(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?..."
	}
	return url
}

// Package calendar implements a Google Calendar v3 REST client for the
// booking tools: free/busy queries and event insertion. The client talks
// to the API directly over net/http with service-account authentication.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Service is the calendar surface the booking tools depend on.
// Implementations must not panic; all failures are reported as errors.
type Service interface {
	// FreeBusy returns the busy intervals for a calendar between timeMin
	// and timeMax.
	FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Interval, error)

	// InsertEvent creates an event and returns its HTML link.
	InsertEvent(ctx context.Context, calendarID string, event *Event) (string, error)
}

// Interval is a busy time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Event is a calendar event to be inserted.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	GuestEmail  string
}

// Client is the Google Calendar REST client.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// TokenSource provides OAuth2 bearer tokens for API requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NewClient creates a calendar client using the given token source.
func NewClient(tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: defaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With("component", "calendar"),
	}
}

// SetBaseURL overrides the API base URL (used in tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// ---------- Wire Types ----------

type freeBusyRequest struct {
	TimeMin string             `json:"timeMin"`
	TimeMax string             `json:"timeMax"`
	Items   []freeBusyCalendar `json:"items"`
}

type freeBusyCalendar struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"calendars"`
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type eventAttendee struct {
	Email string `json:"email"`
}

type eventRequest struct {
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Start       eventTime       `json:"start"`
	End         eventTime       `json:"end"`
	Attendees   []eventAttendee `json:"attendees,omitempty"`
}

type eventResponse struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink"`
	Status   string `json:"status"`
}

// ---------- API Methods ----------

// FreeBusy queries busy intervals for a calendar over a time range.
func (c *Client) FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Interval, error) {
	reqBody := freeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []freeBusyCalendar{{ID: calendarID}},
	}

	var resp freeBusyResponse
	if err := c.post(ctx, "/freeBusy", reqBody, &resp); err != nil {
		return nil, err
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("no calendar data returned for %q", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar query failed: %s", cal.Errors[0].Reason)
	}

	busy := make([]Interval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		busy = append(busy, Interval{Start: b.Start, End: b.End})
	}

	c.logger.Debug("freebusy query done",
		"calendar", calendarID,
		"busy_intervals", len(busy),
	)
	return busy, nil
}

// InsertEvent creates an event and returns its HTML link.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, event *Event) (string, error) {
	reqBody := eventRequest{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       eventTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         eventTime{DateTime: event.End.Format(time.RFC3339)},
	}
	if event.GuestEmail != "" {
		reqBody.Attendees = []eventAttendee{{Email: event.GuestEmail}}
	}

	path := "/calendars/" + url.PathEscape(calendarID) + "/events"

	var resp eventResponse
	if err := c.post(ctx, path, reqBody, &resp); err != nil {
		return "", err
	}

	c.logger.Info("event created",
		"calendar", calendarID,
		"event_id", resp.ID,
		"summary", event.Summary,
	)
	return resp.HTMLLink, nil
}

// post sends a JSON POST request and decodes the JSON response.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("getting access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// truncate shortens a string for log/error output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Package backend is the client for the booking backend REST API. The
// backend fronts Outlook/Graph, so event payloads keep the Graph shape and
// its timestamps arrive as naive local-format strings that must be read as
// UTC.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/models"
)

// ErrUnauthorized is returned on a 401; the poller treats it as "skip this
// poll", never as fatal.
var ErrUnauthorized = errors.New("backend rejected credentials")

// checkedInCategory is the Outlook category tag the backend applies when a
// meeting has been checked in
const checkedInCategory = "Checked-In"

// APIError carries the structured {detail} body of a failed backend call
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// Client handles interactions with the booking backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new backend client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graph-shaped wire types

type graphDateTime struct {
	DateTime string `json:"dateTime"`
}

type graphEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEvent struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	Organizer   *graphRecipient  `json:"organizer"`
	Attendees   []graphRecipient `json:"attendees"`
	Start       graphDateTime    `json:"start"`
	End         graphDateTime    `json:"end"`
	Categories  []string         `json:"categories"`
	BodyPreview string           `json:"bodyPreview"`
}

// ParseEventTime interprets a backend timestamp. The backend emits naive
// strings ("2026-08-31T09:00:00" or with fractional seconds); they are UTC
// and get an explicit Z suffix before parsing.
func ParseEventTime(value string) (time.Time, error) {
	if len(value) < 10 {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
	}
	if !strings.HasSuffix(value, "Z") && !strings.ContainsAny(value[10:], "+-") {
		value += "Z"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

func (e *graphEvent) toSnapshot() (*models.MeetingSnapshot, error) {
	start, err := ParseEventTime(e.Start.DateTime)
	if err != nil {
		return nil, fmt.Errorf("bad start time: %w", err)
	}
	end, err := ParseEventTime(e.End.DateTime)
	if err != nil {
		return nil, fmt.Errorf("bad end time: %w", err)
	}

	snapshot := &models.MeetingSnapshot{
		EventID:     e.ID,
		Subject:     e.Subject,
		StartTime:   start,
		EndTime:     end,
		BodyPreview: e.BodyPreview,
	}
	if e.Organizer != nil {
		snapshot.Organizer = models.Organizer{
			Name:  e.Organizer.EmailAddress.Name,
			Email: e.Organizer.EmailAddress.Address,
		}
	}
	for _, a := range e.Attendees {
		snapshot.Attendees = append(snapshot.Attendees, models.Attendee{Email: a.EmailAddress.Address})
	}
	for _, c := range e.Categories {
		if c == checkedInCategory {
			snapshot.IsCheckedIn = true
			break
		}
	}
	return snapshot, nil
}

// ActiveMeeting fetches the current or next meeting for a room, or nil when
// the room is free
func (c *Client) ActiveMeeting(ctx context.Context, roomEmail string) (*models.MeetingSnapshot, error) {
	endpoint := fmt.Sprintf("%s/active-meeting?room_email=%s", c.baseURL, url.QueryEscape(roomEmail))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var event graphEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("failed to parse active meeting: %w", err)
	}
	return event.toSnapshot()
}

// CheckIn marks the event as attended
func (c *Client) CheckIn(ctx context.Context, roomEmail, eventID string) error {
	return c.postAction(ctx, "/checkin", roomEmail, eventID)
}

// EndMeeting releases the room before the scheduled end
func (c *Client) EndMeeting(ctx context.Context, roomEmail, eventID string) error {
	return c.postAction(ctx, "/end-meeting", roomEmail, eventID)
}

func (c *Client) postAction(ctx context.Context, path, roomEmail, eventID string) error {
	payload, err := json.Marshal(map[string]string{
		"room_email": roomEmail,
		"event_id":   eventID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}

// BookingRequest is the payload for creating a booking
type BookingRequest struct {
	Subject        string   `json:"subject"`
	RoomEmail      string   `json:"room_email"`
	StartTime      string   `json:"start_time"` // ISO-8601 UTC
	EndTime        string   `json:"end_time"`   // ISO-8601 UTC
	OrganizerEmail string   `json:"organizer_email"`
	Attendees      []string `json:"attendees"`
	Filiale        string   `json:"filiale"`
	Description    string   `json:"description"`
}

// Book creates a booking on behalf of the signed-in user. The bearer token is
// required; the backend forwards it to Graph.
func (c *Client) Book(ctx context.Context, accessToken string, booking BookingRequest) error {
	payload, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/book", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}

// Rooms fetches the list of bookable rooms
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rooms", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var wrapper struct {
		Value []models.Room `json:"value"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse room list: %w", err)
	}
	return wrapper.Value, nil
}

// AvailabilityRequest is the free/busy query for the timeline grid
type AvailabilityRequest struct {
	RoomEmail string `json:"room_email"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	TimeZone  string `json:"time_zone"`
}

// Availability forwards a free/busy query and relays the Graph-shaped
// schedule untouched; only the timeline renderer interprets it.
func (c *Client) Availability(ctx context.Context, query AvailabilityRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/availability", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return json.RawMessage(body), nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
	}
	return apiErr
}

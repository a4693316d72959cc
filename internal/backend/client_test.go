package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
		fails bool
	}{
		{
			name:  "naive timestamp read as UTC",
			value: "2026-08-31T09:00:00",
			want:  time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive with fractional seconds",
			value: "2026-08-31T09:00:00.0000000",
			want:  time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "explicit zulu untouched",
			value: "2026-08-31T09:00:00Z",
			want:  time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "explicit offset normalized to UTC",
			value: "2026-08-31T11:00:00+02:00",
			want:  time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "garbage",
			value: "not a time",
			fails: true,
		},
		{
			name:  "too short",
			value: "09:00",
			fails: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backend.ParseEventTime(tt.value)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func activeMeetingBody() string {
	return `{
		"id": "AAMkAGE1",
		"subject": "Filiale Nord: Planung",
		"organizer": {"emailAddress": {"name": "Maria Rossi", "address": "maria.rossi@example.com"}},
		"attendees": [
			{"emailAddress": {"address": "jan.kowalski@example.com"}},
			{"emailAddress": {"address": "aquarium@example.com"}}
		],
		"start": {"dateTime": "2026-08-31T09:00:00.0000000"},
		"end": {"dateTime": "2026-08-31T09:30:00.0000000"},
		"categories": ["Checked-In", "Blue"],
		"bodyPreview": "Quartalszahlen. Filiale: Nord. Bitte Unterlagen mitbringen."
	}`
}

func TestActiveMeeting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/active-meeting", r.URL.Path)
		assert.Equal(t, "aquarium@example.com", r.URL.Query().Get("room_email"))
		io.WriteString(w, activeMeetingBody())
	}))
	defer server.Close()

	client := backend.NewClient(server.URL)
	snap, err := client.ActiveMeeting(context.Background(), "aquarium@example.com")
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "AAMkAGE1", snap.EventID)
	assert.Equal(t, "Filiale Nord: Planung", snap.Subject)
	assert.Equal(t, "maria.rossi@example.com", snap.Organizer.Email)
	assert.Equal(t, "Maria Rossi", snap.Organizer.Name)
	require.Len(t, snap.Attendees, 2)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), snap.StartTime)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC), snap.EndTime)
	assert.True(t, snap.IsCheckedIn, "Checked-In category marks the meeting attended")
}

func TestActiveMeetingOtherCategoriesIgnored(t *testing.T) {
	body := activeMeetingBody()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &event))
		event["categories"] = []string{"Blue", "Important"}
		json.NewEncoder(w).Encode(event)
	}))
	defer server.Close()

	snap, err := backend.NewClient(server.URL).ActiveMeeting(context.Background(), "aquarium@example.com")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.False(t, snap.IsCheckedIn)
}

func TestActiveMeetingFreeRoom(t *testing.T) {
	for _, body := range []string{"null", "", "  "} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))
		snap, err := backend.NewClient(server.URL).ActiveMeeting(context.Background(), "aquarium@example.com")
		assert.NoError(t, err)
		assert.Nil(t, snap)
		server.Close()
	}
}

func TestActiveMeetingUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := backend.NewClient(server.URL).ActiveMeeting(context.Background(), "aquarium@example.com")
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestActiveMeetingServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"detail": "graph timeout"}`)
	}))
	defer server.Close()

	_, err := backend.NewClient(server.URL).ActiveMeeting(context.Background(), "aquarium@example.com")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "graph timeout", apiErr.Detail)
}

func TestCheckInPostsAction(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkin", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	err := backend.NewClient(server.URL).CheckIn(context.Background(), "aquarium@example.com", "E42")
	require.NoError(t, err)
	assert.Equal(t, "aquarium@example.com", got["room_email"])
	assert.Equal(t, "E42", got["event_id"])
}

func TestEndMeetingPropagatesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/end-meeting", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"detail": "meeting already ended"}`)
	}))
	defer server.Close()

	err := backend.NewClient(server.URL).EndMeeting(context.Background(), "aquarium@example.com", "E42")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Error(), "meeting already ended")
}

func TestBookSendsBearerToken(t *testing.T) {
	var gotAuth string
	var gotBooking backend.BookingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBooking))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	booking := backend.BookingRequest{
		Subject:        "Filiale Nord: Planung",
		RoomEmail:      "aquarium@example.com",
		StartTime:      "2026-08-31T09:00:00Z",
		EndTime:        "2026-08-31T09:30:00Z",
		OrganizerEmail: "maria.rossi@example.com",
		Filiale:        "Nord",
	}
	err := backend.NewClient(server.URL).Book(context.Background(), "at-456", booking)
	require.NoError(t, err)
	assert.Equal(t, "Bearer at-456", gotAuth)
	assert.Equal(t, booking, gotBooking)
}

func TestRoomsUnwrapsValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms", r.URL.Path)
		io.WriteString(w, `{"value": [
			{"id": "r1", "displayName": "Aquarium", "emailAddress": "aquarium@example.com", "floor": "2"},
			{"id": "r2", "displayName": "Terrarium", "emailAddress": "terrarium@example.com", "floor": "3"}
		]}`)
	}))
	defer server.Close()

	rooms, err := backend.NewClient(server.URL).Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Aquarium", rooms[0].DisplayName)
	assert.Equal(t, "terrarium@example.com", rooms[1].EmailAddress)
}

func TestAvailabilityPassesScheduleThrough(t *testing.T) {
	schedule := `{"value":[{"scheduleId":"aquarium@example.com","scheduleItems":[{"status":"busy"}]}]}`
	var gotQuery backend.AvailabilityRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/availability", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		io.WriteString(w, schedule)
	}))
	defer server.Close()

	raw, err := backend.NewClient(server.URL).Availability(context.Background(), backend.AvailabilityRequest{
		RoomEmail: "aquarium@example.com",
		StartTime: "2026-08-31T08:00:00Z",
		EndTime:   "2026-08-31T20:00:00Z",
		TimeZone:  "UTC",
	})
	require.NoError(t, err)
	assert.JSONEq(t, schedule, string(raw))
	assert.Equal(t, "UTC", gotQuery.TimeZone)
}

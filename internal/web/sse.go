package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/ThxTiger/roomkiosk/internal/occupancy"
)

// Stream names the display subscribes to
const (
	StreamState     = "state"
	StreamCountdown = "countdown"
	StreamSession   = "session"
)

// Notifier pushes occupancy updates, countdown ticks and session events to
// the display over server-sent events
type Notifier struct {
	server *sse.Server
}

// NewNotifier creates the SSE server with the three kiosk streams
func NewNotifier() *Notifier {
	server := sse.New()
	// Ticks are ephemeral; a reconnecting display gets fresh state from
	// /api/state, so replaying history would only show stale countdowns.
	server.AutoReplay = false
	server.CreateStream(StreamState)
	server.CreateStream(StreamCountdown)
	server.CreateStream(StreamSession)
	return &Notifier{server: server}
}

// ServeHTTP hands the connection to the SSE server; the display selects a
// stream with the ?stream= query parameter
func (n *Notifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.server.ServeHTTP(w, r)
}

// Shutdown closes all SSE connections
func (n *Notifier) Shutdown() {
	n.server.Close()
}

// PublishState pushes an occupancy update to the display
func (n *Notifier) PublishState(update occupancy.Update) {
	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshalling state update: %v", err)
		return
	}
	n.server.Publish(StreamState, &sse.Event{Event: []byte("update"), Data: data})
}

// PublishTick pushes a rendered countdown value for a slot
func (n *Notifier) PublishTick(slot occupancy.CountdownSlot, text string) {
	payload := struct {
		Slot string `json:"slot"`
		Text string `json:"text"`
	}{Text: text}
	switch slot {
	case occupancy.SlotCheckIn:
		payload.Slot = "check_in"
	case occupancy.SlotMeetingEnd:
		payload.Slot = "meeting_end"
	default:
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling countdown tick: %v", err)
		return
	}
	n.server.Publish(StreamCountdown, &sse.Event{Event: []byte("tick"), Data: data})
}

// PublishSessionExpired tells the display the signed-in session lapsed
func (n *Notifier) PublishSessionExpired() {
	n.server.Publish(StreamSession, &sse.Event{Event: []byte("expired"), Data: []byte(`{"reason":"timeout"}`)})
}

// PublishPrompt shows the device-flow user code on the display
func (n *Notifier) PublishPrompt(userCode, verificationURI string) {
	payload := struct {
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
	}{userCode, verificationURI}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling auth prompt: %v", err)
		return
	}
	n.server.Publish(StreamSession, &sse.Event{Event: []byte("prompt"), Data: data})
}

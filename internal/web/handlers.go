// Package web exposes the occupancy controller's HTTP surface: JSON action
// endpoints for the display, an SSE stream of state changes and countdown
// ticks, and health endpoints.
package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ThxTiger/roomkiosk/internal/backend"
	"github.com/ThxTiger/roomkiosk/internal/identity"
	"github.com/ThxTiger/roomkiosk/internal/service"
	"github.com/ThxTiger/roomkiosk/internal/utils"
)

// timelineWindow is how much schedule the availability grid shows
const timelineWindow = 12 * time.Hour

// Handler serves the display-facing HTTP API
type Handler struct {
	service  KioskServicer
	notifier *Notifier
}

// NewHandler creates the web handler and wires the monitor's updates and
// ticks into the SSE notifier
func NewHandler(svc KioskServicer) *Handler {
	h := &Handler{
		service:  svc,
		notifier: NewNotifier(),
	}
	svc.Monitor().Subscribe(h.notifier.PublishState)
	return h
}

// Notifier returns the SSE notifier, for wiring callbacks in main
func (h *Handler) Notifier() *Notifier {
	return h.notifier
}

// Shutdown closes the SSE connections
func (h *Handler) Shutdown() {
	h.notifier.Shutdown()
}

// SetupRoutes registers all routes on the given router
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health/live", HealthLiveHandler).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", HealthReadyHandler).Methods(http.MethodGet)
	router.HandleFunc("/events", h.notifier.ServeHTTP).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", h.handleRooms).Methods(http.MethodGet)
	api.HandleFunc("/select-room", h.handleSelectRoom).Methods(http.MethodPost)
	api.HandleFunc("/state", h.handleState).Methods(http.MethodGet)
	api.HandleFunc("/session", h.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/signin", h.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/signout", h.handleSignOut).Methods(http.MethodPost)
	api.HandleFunc("/checkin", h.handleCheckIn).Methods(http.MethodPost)
	api.HandleFunc("/end-meeting", h.handleEndMeeting).Methods(http.MethodPost)
	api.HandleFunc("/book", h.handleBook).Methods(http.MethodPost)
	api.HandleFunc("/availability", h.handleAvailability).Methods(http.MethodGet)
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.Rooms(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": rooms})
}

func (h *Handler) handleSelectRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EmailAddress string `json:"email_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EmailAddress == "" {
		http.Error(w, "email_address required", http.StatusBadRequest)
		return
	}
	if err := h.service.SelectRoom(r.Context(), body.EmailAddress); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	update, ok := h.service.Monitor().Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"state": "free"})
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	session := h.service.Session()
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]any{"signed_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signed_in":  true,
		"identity":   session.Identity,
		"expires_at": session.ExpiresAt,
	})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.SignIn(r.Context())
	if err != nil {
		if errors.Is(err, identity.ErrCancelled) {
			writeJSON(w, http.StatusOK, map[string]any{"signed_in": false, "cancelled": true})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signed_in":  true,
		"identity":   session.Identity,
		"expires_at": session.ExpiresAt,
	})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	h.service.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CheckIn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, statusForAction(result), result)
}

func (h *Handler) handleEndMeeting(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.EndMeeting(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, statusForAction(result), result)
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	var params service.BookingParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid booking payload", http.StatusBadRequest)
		return
	}
	if params.Subject == "" || params.StartTime.IsZero() || params.EndTime.IsZero() {
		http.Error(w, "subject, start_time and end_time required", http.StatusBadRequest)
		return
	}

	bookingID := uuid.NewString()
	if err := h.service.Book(r.Context(), params); err != nil {
		log.Printf("Booking %s rejected: %v", bookingID, err)
		writeError(w, err)
		return
	}
	log.Printf("Booking %s confirmed for %s", bookingID, utils.SanitizeLogString(params.Subject))
	writeJSON(w, http.StatusOK, map[string]any{"booking_id": bookingID, "status": "confirmed"})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	// The grid always shows a window anchored to the top of the current hour.
	start := time.Now().UTC().Truncate(time.Hour)
	schedule, err := h.service.Availability(r.Context(), start, start.Add(timelineWindow))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(schedule); err != nil {
		log.Printf("Error writing availability response: %v", err)
	}
}

func statusForAction(result service.ActionResult) int {
	if result.Status == service.ActionDenied {
		return http.StatusForbidden
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps service errors onto HTTP statuses. Backend failures keep
// their structured detail so the display can show a readable message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotSignedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNoRoomSelected), errors.Is(err, service.ErrNoActionableMeeting):
		status = http.StatusConflict
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

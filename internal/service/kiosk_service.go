// Package service implements the kiosk workflows on top of the occupancy
// monitor: sign-in and session lifetime, room selection, check-in, early
// meeting end and booking.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/backend"
	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/ThxTiger/roomkiosk/internal/identity"
	"github.com/ThxTiger/roomkiosk/internal/metrics"
	"github.com/ThxTiger/roomkiosk/internal/models"
	"github.com/ThxTiger/roomkiosk/internal/occupancy"
	"github.com/ThxTiger/roomkiosk/internal/repository"
	"github.com/ThxTiger/roomkiosk/internal/utils"
)

// ErrNoRoomSelected is returned for room-scoped actions before a selection
var ErrNoRoomSelected = errors.New("no room selected")

// ErrNotSignedIn is returned when booking is attempted without a session
var ErrNotSignedIn = errors.New("not signed in")

// ErrNoActionableMeeting is returned when a check-in or end-meeting has no
// candidate event to act on
var ErrNoActionableMeeting = errors.New("no actionable meeting")

// BackendAPI is the slice of the backend client the service uses
type BackendAPI interface {
	CheckIn(ctx context.Context, roomEmail, eventID string) error
	EndMeeting(ctx context.Context, roomEmail, eventID string) error
	Book(ctx context.Context, accessToken string, booking backend.BookingRequest) error
	Rooms(ctx context.Context) ([]models.Room, error)
	Availability(ctx context.Context, query backend.AvailabilityRequest) (json.RawMessage, error)
}

// Authorizer is the slice of the identity verifier the service uses
type Authorizer interface {
	VerifyAndAuthorize(ctx context.Context, event *models.MeetingSnapshot) (identity.Outcome, error)
}

// ActionStatus classifies the outcome of an identity-gated action
type ActionStatus string

const (
	ActionOK        ActionStatus = "ok"
	ActionDenied    ActionStatus = "denied"
	ActionCancelled ActionStatus = "cancelled"
)

// ActionResult is returned from check-in and end-meeting so the display can
// show the right notice without interpreting errors
type ActionResult struct {
	Status   ActionStatus `json:"status"`
	Identity string       `json:"identity,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// SessionExpiredFunc notifies the display that the signed-in session lapsed
type SessionExpiredFunc func()

// KioskService ties the monitor, the backend and the identity verifier into
// the workflows the display invokes
type KioskService struct {
	cfg      config.KioskConfig
	backend  BackendAPI
	monitor  *occupancy.Monitor
	verifier Authorizer
	provider identity.Provider
	repo     repository.Repository
	metrics  *metrics.Metrics

	mu             sync.Mutex
	session        *models.Session
	sessionTimer   *time.Timer
	rooms          []models.Room
	onSessionLapse SessionExpiredFunc
}

// NewKioskService creates the service. metrics may be nil.
func NewKioskService(cfg config.KioskConfig, api BackendAPI, monitor *occupancy.Monitor,
	verifier Authorizer, provider identity.Provider, repo repository.Repository, m *metrics.Metrics) *KioskService {
	return &KioskService{
		cfg:      cfg,
		backend:  api,
		monitor:  monitor,
		verifier: verifier,
		provider: provider,
		repo:     repo,
		metrics:  m,
	}
}

// RestoreSession reloads a persisted, still-active session after a controller
// restart and rearms its expiry timer for the remaining lifetime
func (s *KioskService) RestoreSession(ctx context.Context) {
	if s.repo == nil {
		return
	}
	session, err := s.repo.GetSession(ctx)
	if err != nil || !session.Active(time.Now()) {
		return
	}

	s.mu.Lock()
	if s.sessionTimer != nil {
		s.sessionTimer.Stop()
	}
	s.session = session
	s.sessionTimer = time.AfterFunc(time.Until(session.ExpiresAt), s.expireSession)
	s.mu.Unlock()

	log.Printf("Restored session for %s", utils.SanitizeLogString(session.Identity))
}

// OnSessionExpired registers the display notification for session expiry
func (s *KioskService) OnSessionExpired(fn SessionExpiredFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSessionLapse = fn
}

// Monitor exposes the occupancy monitor to the web layer
func (s *KioskService) Monitor() *occupancy.Monitor {
	return s.monitor
}

// Rooms returns the bookable rooms, fetched once and cached for the session
func (s *KioskService) Rooms(ctx context.Context) ([]models.Room, error) {
	s.mu.Lock()
	if s.rooms != nil {
		rooms := s.rooms
		s.mu.Unlock()
		return rooms, nil
	}
	s.mu.Unlock()

	rooms, err := s.backend.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rooms: %w", err)
	}

	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()
	return rooms, nil
}

// SelectRoom switches the kiosk to the room with the given email address
func (s *KioskService) SelectRoom(ctx context.Context, emailAddress string) error {
	rooms, err := s.Rooms(ctx)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if room.EmailAddress == emailAddress {
			s.monitor.SelectRoom(ctx, room)
			log.Printf("Selected room %s", utils.SanitizeLogString(room.DisplayName))
			return nil
		}
	}
	return fmt.Errorf("unknown room %q", emailAddress)
}

// Session returns the current session, or nil when signed out or expired
func (s *KioskService) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || !s.session.Active(time.Now()) {
		return nil
	}
	session := *s.session
	return &session
}

// SignIn runs an interactive authentication and opens a session with the
// configured wall-clock timeout
func (s *KioskService) SignIn(ctx context.Context) (*models.Session, error) {
	token, err := s.provider.AcquireInteractive(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, token.Account.Email), nil
}

// SignOut clears the session immediately and drops any cached token, so the
// next operator at the kiosk cannot act under the previous identity
func (s *KioskService) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.clearSessionLocked()
	s.mu.Unlock()

	if forgetter, ok := s.provider.(interface{ Forget() }); ok {
		forgetter.Forget()
	}

	if s.repo != nil {
		if err := s.repo.ClearSession(ctx); err != nil {
			log.Printf("Error clearing persisted session: %v", err)
		}
	}
}

func (s *KioskService) openSession(ctx context.Context, identityEmail string) *models.Session {
	session := &models.Session{
		Identity:  identityEmail,
		ExpiresAt: time.Now().Add(s.cfg.SessionTimeout),
	}

	s.mu.Lock()
	if s.sessionTimer != nil {
		s.sessionTimer.Stop()
	}
	s.session = session
	s.sessionTimer = time.AfterFunc(s.cfg.SessionTimeout, s.expireSession)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, session); err != nil {
			log.Printf("Error persisting session: %v", err)
		}
	}

	log.Printf("Signed in as %s", utils.SanitizeLogString(identityEmail))
	copied := *session
	return &copied
}

// expireSession fires on the session timer. It clears the signed-in identity
// only; an active occupancy lock keeps running, expiry is scoped to the
// booking and identity UI.
func (s *KioskService) expireSession() {
	s.mu.Lock()
	lapse := s.onSessionLapse
	s.clearSessionLocked()
	s.mu.Unlock()

	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.repo.ClearSession(ctx); err != nil {
			log.Printf("Error clearing persisted session: %v", err)
		}
	}

	log.Println("Session expired")
	if lapse != nil {
		lapse()
	}
}

func (s *KioskService) clearSessionLocked() {
	s.session = nil
	if s.sessionTimer != nil {
		s.sessionTimer.Stop()
		s.sessionTimer = nil
	}
}

// CheckIn verifies the identity at the kiosk and marks the pending meeting
// attended. Check-in is reachable without a prior sign-in: the interactive
// verification itself asserts who is standing at the kiosk.
func (s *KioskService) CheckIn(ctx context.Context) (ActionResult, error) {
	room := s.monitor.Room()
	if room == nil {
		return ActionResult{}, ErrNoRoomSelected
	}
	candidate := s.monitor.ActiveSnapshot()
	if candidate == nil || !candidate.HasStarted(time.Now()) || candidate.IsCheckedIn {
		return ActionResult{}, ErrNoActionableMeeting
	}

	outcome, err := s.verifier.VerifyAndAuthorize(ctx, candidate)
	if err != nil {
		s.monitor.PollNow()
		return ActionResult{}, err
	}

	switch outcome.Decision {
	case identity.DecisionDenied:
		return s.handleDenial(ctx, outcome), nil
	case identity.DecisionCancelled:
		// Restore whatever the display showed before the prompt.
		s.monitor.PollNow()
		return ActionResult{Status: ActionCancelled}, nil
	}

	if err := s.backend.CheckIn(ctx, room.EmailAddress, candidate.EventID); err != nil {
		s.monitor.PollNow()
		return ActionResult{}, fmt.Errorf("check-in failed: %w", err)
	}

	s.monitor.LockNow(ctx, candidate)
	return ActionResult{Status: ActionOK, Identity: outcome.Identity}, nil
}

// EndMeeting verifies the identity at the kiosk and releases the locked room
// before its scheduled end
func (s *KioskService) EndMeeting(ctx context.Context) (ActionResult, error) {
	room := s.monitor.Room()
	if room == nil {
		return ActionResult{}, ErrNoRoomSelected
	}
	locked := s.monitor.LockedEvent()
	if locked == nil {
		return ActionResult{}, ErrNoActionableMeeting
	}

	outcome, err := s.verifier.VerifyAndAuthorize(ctx, locked)
	if err != nil {
		s.monitor.PollNow()
		return ActionResult{}, err
	}

	switch outcome.Decision {
	case identity.DecisionDenied:
		return s.handleDenial(ctx, outcome), nil
	case identity.DecisionCancelled:
		s.monitor.PollNow()
		return ActionResult{Status: ActionCancelled}, nil
	}

	if err := s.backend.EndMeeting(ctx, room.EmailAddress, locked.EventID); err != nil {
		s.monitor.PollNow()
		return ActionResult{}, fmt.Errorf("end-meeting failed: %w", err)
	}

	s.monitor.MarkReleased(ctx, locked.EventID)
	log.Printf("Meeting %s released early by %s",
		utils.SanitizeLogString(locked.EventID), utils.SanitizeLogString(outcome.Identity))
	return ActionResult{Status: ActionOK, Identity: outcome.Identity}, nil
}

// handleDenial applies the configured denial policy. By default the denial
// is reported and nothing else changes; with SignOutOnDenial the whole kiosk
// session is cleared as an extra lockout measure.
func (s *KioskService) handleDenial(ctx context.Context, outcome identity.Outcome) ActionResult {
	if s.metrics != nil {
		s.metrics.Denials.Inc()
	}
	log.Printf("Authorization denied for %s", utils.SanitizeLogString(outcome.Identity))
	if s.cfg.SignOutOnDenial {
		s.SignOut(ctx)
	}
	return ActionResult{Status: ActionDenied, Identity: outcome.Identity, Message: outcome.Message}
}

// BookingParams is the display-side booking form
type BookingParams struct {
	Subject     string    `json:"subject"`
	Filiale     string    `json:"filiale"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Attendees   []string  `json:"attendees"`
}

// Book creates a booking for the selected room on behalf of the signed-in
// user. The bearer token is acquired silently when possible, falling back to
// an interactive prompt that also refreshes the session.
func (s *KioskService) Book(ctx context.Context, params BookingParams) error {
	session := s.Session()
	if session == nil {
		return ErrNotSignedIn
	}
	room := s.monitor.Room()
	if room == nil {
		return ErrNoRoomSelected
	}

	token, err := s.provider.AcquireSilent(ctx)
	if err != nil {
		token, err = s.provider.AcquireInteractive(ctx, false)
		if err != nil {
			return fmt.Errorf("could not acquire token: %w", err)
		}
		s.openSession(ctx, token.Account.Email)
	}

	booking := backend.BookingRequest{
		Subject:        params.Subject,
		RoomEmail:      room.EmailAddress,
		StartTime:      params.StartTime.UTC().Format(time.RFC3339),
		EndTime:        params.EndTime.UTC().Format(time.RFC3339),
		OrganizerEmail: token.Account.Email,
		Attendees:      params.Attendees,
		Filiale:        params.Filiale,
		Description:    params.Description,
	}
	if err := s.backend.Book(ctx, token.AccessToken, booking); err != nil {
		return err
	}

	log.Printf("Booking created for %s by %s",
		utils.SanitizeLogString(room.EmailAddress), utils.SanitizeLogString(token.Account.Email))
	s.monitor.PollNow()
	return nil
}

// Availability relays the timeline free/busy query for the selected room
func (s *KioskService) Availability(ctx context.Context, start, end time.Time) (json.RawMessage, error) {
	room := s.monitor.Room()
	if room == nil {
		return nil, ErrNoRoomSelected
	}
	return s.backend.Availability(ctx, backend.AvailabilityRequest{
		RoomEmail: room.EmailAddress,
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
		TimeZone:  "UTC",
	})
}

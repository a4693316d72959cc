package models

import "time"

// Account is the identity returned by the identity provider
type Account struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Session is the signed-in state of the kiosk. It is scoped to the booking
// and identity UI only; an expiring session never interrupts an active
// occupancy lock.
type Session struct {
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the session is signed in and not yet expired
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.Identity != "" && now.Before(s.ExpiresAt)
}

// Package repository defines interfaces for persisting kiosk state
package repository

import (
	"context"

	"github.com/ThxTiger/roomkiosk/internal/models"
)

// Repository stores the small amount of kiosk state that must survive a
// controller restart: the signed-in session, the locked event per room, the
// manually released event id per room, and the repaired subjects shown for
// known events. Everything else is recomputed from the next poll.
type Repository interface {
	// Session operations
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context) (*models.Session, error)
	ClearSession(ctx context.Context) error

	// Locked-event operations, keyed by room email
	SaveLockedEvent(ctx context.Context, roomEmail string, snapshot *models.MeetingSnapshot) error
	GetLockedEvent(ctx context.Context, roomEmail string) (*models.MeetingSnapshot, error)
	ClearLockedEvent(ctx context.Context, roomEmail string) error

	// Released-event operations: the event id that must not re-lock
	SetReleasedEvent(ctx context.Context, roomEmail, eventID string) error
	GetReleasedEvent(ctx context.Context, roomEmail string) (string, error)
	ClearReleasedEvent(ctx context.Context, roomEmail string) error

	// Subject cache used by subject repair across polls and restarts
	SaveSubject(ctx context.Context, eventID, subject string) error
	GetSubject(ctx context.Context, eventID string) (string, error)
}

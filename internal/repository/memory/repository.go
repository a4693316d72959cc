// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ThxTiger/roomkiosk/internal/models"
)

// ErrNotFound is returned when a requested entity is not found
var ErrNotFound = errors.New("entity not found")

// Repository implements the repository interface with in-memory storage
type Repository struct {
	mu       sync.RWMutex
	session  *models.Session
	locked   map[string]*models.MeetingSnapshot // keyed by room email
	released map[string]string                  // room email -> event id
	subjects map[string]string                  // event id -> repaired subject
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		locked:   make(map[string]*models.MeetingSnapshot),
		released: make(map[string]string),
		subjects: make(map[string]string),
	}
}

// SaveSession stores the signed-in session
func (r *Repository) SaveSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.session = &copied
	return nil
}

// GetSession retrieves the signed-in session
func (r *Repository) GetSession(ctx context.Context) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.session == nil {
		return nil, ErrNotFound
	}
	copied := *r.session
	return &copied, nil
}

// ClearSession removes the signed-in session
func (r *Repository) ClearSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = nil
	return nil
}

// SaveLockedEvent stores the snapshot captured at check-in for a room
func (r *Repository) SaveLockedEvent(ctx context.Context, roomEmail string, snapshot *models.MeetingSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *snapshot
	r.locked[roomEmail] = &copied
	return nil
}

// GetLockedEvent retrieves the locked event for a room
func (r *Repository) GetLockedEvent(ctx context.Context, roomEmail string) (*models.MeetingSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.locked[roomEmail]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *snapshot
	return &copied, nil
}

// ClearLockedEvent removes the locked event for a room
func (r *Repository) ClearLockedEvent(ctx context.Context, roomEmail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locked, roomEmail)
	return nil
}

// SetReleasedEvent records the event id that must not re-lock the room
func (r *Repository) SetReleasedEvent(ctx context.Context, roomEmail, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released[roomEmail] = eventID
	return nil
}

// GetReleasedEvent retrieves the released event id for a room
func (r *Repository) GetReleasedEvent(ctx context.Context, roomEmail string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.released[roomEmail]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// ClearReleasedEvent removes the released event id for a room
func (r *Repository) ClearReleasedEvent(ctx context.Context, roomEmail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.released, roomEmail)
	return nil
}

// SaveSubject stores the repaired subject shown for an event
func (r *Repository) SaveSubject(ctx context.Context, eventID, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects[eventID] = subject
	return nil
}

// GetSubject retrieves the repaired subject shown for an event
func (r *Repository) GetSubject(ctx context.Context, eventID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subject, ok := r.subjects[eventID]
	if !ok {
		return "", ErrNotFound
	}
	return subject, nil
}

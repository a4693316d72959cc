// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/ThxTiger/roomkiosk/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a requested entity is not found
var ErrNotFound = errors.New("entity not found")

// Repository implements the repository interface with Redis storage
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}

		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}

		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.StateTTL,
	}, nil
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) sessionKey() string {
	return r.keyPrefix + "session"
}

func (r *Repository) lockedKey(roomEmail string) string {
	return fmt.Sprintf("%slocked:%s", r.keyPrefix, roomEmail)
}

func (r *Repository) releasedKey(roomEmail string) string {
	return fmt.Sprintf("%sreleased:%s", r.keyPrefix, roomEmail)
}

func (r *Repository) subjectKey(eventID string) string {
	return fmt.Sprintf("%ssubjects:%s", r.keyPrefix, eventID)
}

// SaveSession stores the signed-in session
func (r *Repository) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves the signed-in session
func (r *Repository) GetSession(ctx context.Context) (*models.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ClearSession removes the signed-in session
func (r *Repository) ClearSession(ctx context.Context) error {
	if err := r.client.Del(ctx, r.sessionKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SaveLockedEvent stores the snapshot captured at check-in for a room
func (r *Repository) SaveLockedEvent(ctx context.Context, roomEmail string, snapshot *models.MeetingSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal locked event: %w", err)
	}

	if err := r.client.Set(ctx, r.lockedKey(roomEmail), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save locked event: %w", err)
	}
	return nil
}

// GetLockedEvent retrieves the locked event for a room
func (r *Repository) GetLockedEvent(ctx context.Context, roomEmail string) (*models.MeetingSnapshot, error) {
	data, err := r.client.Get(ctx, r.lockedKey(roomEmail)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get locked event: %w", err)
	}

	var snapshot models.MeetingSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal locked event: %w", err)
	}
	return &snapshot, nil
}

// ClearLockedEvent removes the locked event for a room
func (r *Repository) ClearLockedEvent(ctx context.Context, roomEmail string) error {
	if err := r.client.Del(ctx, r.lockedKey(roomEmail)).Err(); err != nil {
		return fmt.Errorf("failed to clear locked event: %w", err)
	}
	return nil
}

// SetReleasedEvent records the event id that must not re-lock the room
func (r *Repository) SetReleasedEvent(ctx context.Context, roomEmail, eventID string) error {
	if err := r.client.Set(ctx, r.releasedKey(roomEmail), eventID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set released event: %w", err)
	}
	return nil
}

// GetReleasedEvent retrieves the released event id for a room
func (r *Repository) GetReleasedEvent(ctx context.Context, roomEmail string) (string, error) {
	id, err := r.client.Get(ctx, r.releasedKey(roomEmail)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get released event: %w", err)
	}
	return id, nil
}

// ClearReleasedEvent removes the released event id for a room
func (r *Repository) ClearReleasedEvent(ctx context.Context, roomEmail string) error {
	if err := r.client.Del(ctx, r.releasedKey(roomEmail)).Err(); err != nil {
		return fmt.Errorf("failed to clear released event: %w", err)
	}
	return nil
}

// SaveSubject stores the repaired subject shown for an event
func (r *Repository) SaveSubject(ctx context.Context, eventID, subject string) error {
	if err := r.client.Set(ctx, r.subjectKey(eventID), subject, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save subject: %w", err)
	}
	return nil
}

// GetSubject retrieves the repaired subject shown for an event
func (r *Repository) GetSubject(ctx context.Context, eventID string) (string, error) {
	subject, err := r.client.Get(ctx, r.subjectKey(eventID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get subject: %w", err)
	}
	return subject, nil
}

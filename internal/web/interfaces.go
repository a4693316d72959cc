package web

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/models"
	"github.com/ThxTiger/roomkiosk/internal/occupancy"
	"github.com/ThxTiger/roomkiosk/internal/service"
)

// KioskServicer defines the service methods the HTTP layer depends on,
// allowing tests to substitute a mock implementation
type KioskServicer interface {
	Rooms(ctx context.Context) ([]models.Room, error)
	SelectRoom(ctx context.Context, emailAddress string) error
	Session() *models.Session
	SignIn(ctx context.Context) (*models.Session, error)
	SignOut(ctx context.Context)
	CheckIn(ctx context.Context) (service.ActionResult, error)
	EndMeeting(ctx context.Context) (service.ActionResult, error)
	Book(ctx context.Context, params service.BookingParams) error
	Availability(ctx context.Context, start, end time.Time) (json.RawMessage, error)
	Monitor() *occupancy.Monitor
}

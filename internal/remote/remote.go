package remote

import (
	"context"
	"errors"

	"github.com/casalink/inboxd/internal/model"
)

// ErrNotFound is returned when the backend reports the requested entity
// does not exist (deleted, revoked, or already acted upon).
var ErrNotFound = errors.New("remote: not found")

// Directory supplies the current user's connection set. The directory is the
// system of record; a failure here fails the whole refresh.
type Directory interface {
	ListConnections(ctx context.Context, userID string) ([]model.Connection, error)
}

// Messages supplies message history for a single connection, oldest first.
type Messages interface {
	MessageHistory(ctx context.Context, connectionID string) ([]model.Message, error)
}

// Job is a scheduled job referenced by job_request notifications.
type Job struct {
	ID          string `json:"id"`
	PropertyID  string `json:"property_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	ScheduledAt int64  `json:"scheduled_at_unix_ms"`
}

// Property is a property referenced by property_invite notifications.
type Property struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Package calendar provides adapters for external calendar services.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/workmate/workmate/internal/db"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidResponse  = errors.New("invalid server response")
	ErrMalformedContent = errors.New("malformed calendar content")
	ErrNotImplemented   = errors.New("operation not implemented")
	ErrUnsupportedType  = errors.New("unsupported integration type")
)

// CalendarInfo describes a calendar collection on the remote service.
type CalendarInfo struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RemoteEvent is an event as reported by the remote service.
type RemoteEvent struct {
	ExternalID   string    `json:"external_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Location     string    `json:"location"`
	LastModified time.Time `json:"last_modified"`
}

// EventFields carries the writable fields of an event being pushed outward.
type EventFields struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
}

// Window bounds a fetch to a time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Adapter is the protocol-neutral surface the sync engine talks to.
// Connect must be called before any other operation.
type Adapter interface {
	Connect(ctx context.Context, config db.IntegrationConfig, creds db.IntegrationCredentials) error
	TestConnection(ctx context.Context) error
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)
	FetchEvents(ctx context.Context, calendarName string, window Window) ([]RemoteEvent, error)
	CreateEvent(ctx context.Context, calendarName string, fields EventFields) (string, error)
	UpdateEvent(ctx context.Context, externalID string, fields EventFields) error
	DeleteEvent(ctx context.Context, externalID string) error
}

// New returns an unconnected adapter for the given integration type.
func New(integrationType db.IntegrationType) (Adapter, error) {
	switch integrationType {
	case db.IntegrationCalDAV:
		return NewCalDAVAdapter(), nil
	case db.IntegrationGoogle:
		return newOAuthStub("google calendar"), nil
	case db.IntegrationOutlook:
		return newOAuthStub("outlook calendar"), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, integrationType)
	}
}

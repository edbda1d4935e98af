package calendar

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/workmate/workmate/internal/db"
)

const (
	defaultTimeout = 30 * time.Second
	minTLSVersion  = tls.VersionTLS12
)

// CalDAVAdapter talks to a CalDAV server via go-webdav.
type CalDAVAdapter struct {
	baseURL      string
	calendarName string
	client       *caldav.Client

	// calendarPath is resolved lazily on first use and cached.
	calendarPath string
}

// NewCalDAVAdapter creates an unconnected CalDAV adapter.
func NewCalDAVAdapter() *CalDAVAdapter {
	return &CalDAVAdapter{}
}

// Connect builds the CalDAV client and verifies the credentials against the
// server principal.
func (a *CalDAVAdapter) Connect(ctx context.Context, config db.IntegrationConfig, creds db.IntegrationCredentials) error {
	if config.URL == "" {
		return fmt.Errorf("%w: base URL is required", ErrConnectionFailed)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
	}

	client, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, creds.Username, creds.Password),
		config.URL,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create CalDAV client: %w", ErrConnectionFailed, err)
	}

	a.baseURL = config.URL
	a.calendarName = config.CalendarName
	a.client = client
	a.calendarPath = ""

	return a.TestConnection(ctx)
}

// TestConnection verifies the connection to the CalDAV server.
func (a *CalDAVAdapter) TestConnection(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("%w: adapter not connected", ErrConnectionFailed)
	}
	_, err := a.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// ListCalendars discovers all calendars for the current user.
func (a *CalDAVAdapter) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	if a.client == nil {
		return nil, fmt.Errorf("%w: adapter not connected", ErrConnectionFailed)
	}

	principal, err := a.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find principal: %w", ErrConnectionFailed, err)
	}

	homeSet, err := a.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find home set: %w", ErrConnectionFailed, err)
	}

	cals, err := a.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find calendars: %w", ErrConnectionFailed, err)
	}

	calendars := make([]CalendarInfo, 0, len(cals))
	for _, cal := range cals {
		calendars = append(calendars, CalendarInfo{
			Path:        cal.Path,
			Name:        cal.Name,
			Description: cal.Description,
		})
	}

	return calendars, nil
}

// FetchEvents retrieves events within the window via a calendar-query with a
// time-range filter. Malformed objects are skipped, not fatal.
func (a *CalDAVAdapter) FetchEvents(ctx context.Context, calendarName string, window Window) ([]RemoteEvent, error) {
	calendarPath, err := a.resolveCalendar(ctx, calendarName)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{
				{Name: "VEVENT"},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: window.Start,
					End:   window.End,
				},
			},
		},
	}

	objects, err := a.client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query calendar: %w", ErrConnectionFailed, err)
	}

	events := make([]RemoteEvent, 0, len(objects))
	skipped := 0
	for _, obj := range objects {
		if obj.Data == nil {
			skipped++
			continue
		}
		decoded, err := decodeRemoteEvents(obj.Data)
		if err != nil {
			log.Printf("Skipping malformed calendar object %s: %v", obj.Path, err)
			skipped++
			continue
		}
		events = append(events, decoded...)
	}
	if skipped > 0 {
		log.Printf("Skipped %d calendar objects with missing or malformed data", skipped)
	}

	return events, nil
}

// CreateEvent creates a new VEVENT and returns its UID.
func (a *CalDAVAdapter) CreateEvent(ctx context.Context, calendarName string, fields EventFields) (string, error) {
	calendarPath, err := a.resolveCalendar(ctx, calendarName)
	if err != nil {
		return "", err
	}

	uid := uuid.New().String()
	cal := encodeEvent(uid, fields)

	path := eventPath(calendarPath, uid)
	_, err = a.client.PutCalendarObject(ctx, path, cal)
	if err != nil {
		return "", fmt.Errorf("%w: failed to put event: %w", ErrConnectionFailed, err)
	}

	return uid, nil
}

// UpdateEvent rewrites an existing VEVENT, preserving its UID. The event
// must still exist remotely; a PUT to a missing path would silently recreate
// it, so the object is fetched first.
func (a *CalDAVAdapter) UpdateEvent(ctx context.Context, externalID string, fields EventFields) error {
	calendarPath, err := a.resolveCalendar(ctx, a.calendarName)
	if err != nil {
		return err
	}

	if _, err := a.client.GetCalendarObject(ctx, eventPath(calendarPath, externalID)); err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("%w: event %s", ErrNotFound, externalID)
		}
		return fmt.Errorf("%w: failed to fetch event: %w", ErrConnectionFailed, err)
	}

	cal := encodeEvent(externalID, fields)

	path := eventPath(calendarPath, externalID)
	_, err = a.client.PutCalendarObject(ctx, path, cal)
	if err != nil {
		return fmt.Errorf("%w: failed to put event: %w", ErrConnectionFailed, err)
	}

	return nil
}

// DeleteEvent deletes an event by its UID.
func (a *CalDAVAdapter) DeleteEvent(ctx context.Context, externalID string) error {
	calendarPath, err := a.resolveCalendar(ctx, a.calendarName)
	if err != nil {
		return err
	}

	path := eventPath(calendarPath, externalID)
	if err := a.client.RemoveAll(ctx, path); err != nil {
		return fmt.Errorf("%w: failed to delete event: %w", ErrConnectionFailed, err)
	}

	return nil
}

// resolveCalendar finds the path of the named calendar, defaulting to the
// first calendar available when no name is configured.
func (a *CalDAVAdapter) resolveCalendar(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = a.calendarName
	}
	if a.calendarPath != "" {
		return a.calendarPath, nil
	}

	calendars, err := a.ListCalendars(ctx)
	if err != nil {
		return "", err
	}
	if len(calendars) == 0 {
		return "", fmt.Errorf("%w: no calendars found", ErrNotFound)
	}

	if name == "" {
		a.calendarPath = calendars[0].Path
		return a.calendarPath, nil
	}

	for _, cal := range calendars {
		if cal.Name == name {
			a.calendarPath = cal.Path
			return a.calendarPath, nil
		}
	}

	return "", fmt.Errorf("%w: calendar %q", ErrNotFound, name)
}

// eventPath builds the object path for an event UID within a calendar.
func eventPath(calendarPath, uid string) string {
	return strings.TrimSuffix(calendarPath, "/") + "/" + uid + ".ics"
}

// isNotFoundError checks whether a CalDAV error is a missing resource.
func isNotFoundError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "Not Found")
}

// isAuthError checks whether a CalDAV error looks like a credential problem.
func isAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "Unauthorized") ||
		strings.Contains(errStr, "Forbidden")
}

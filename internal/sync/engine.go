// Package sync orchestrates bidirectional synchronization between local
// calendar events and external calendar services.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/workmate/workmate/internal/calendar"
	"github.com/workmate/workmate/internal/db"
)

const (
	// Pull window relative to the current time.
	pullWindowPast   = 30 * 24 * time.Hour
	pullWindowFuture = 365 * 24 * time.Hour
)

// Result represents the outcome of one sync cycle.
type Result struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	Pushed        int           `json:"pushed"`
	Pulled        int           `json:"pulled"`
	Updated       int           `json:"updated"`
	Conflicts     int           `json:"conflicts"`
	Errors        int           `json:"errors"`
	ErrorMessages []string      `json:"error_messages,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// AdapterFactory builds an adapter for an integration type.
type AdapterFactory func(db.IntegrationType) (calendar.Adapter, error)

// Engine orchestrates calendar synchronization.
type Engine struct {
	db         *db.DB
	newAdapter AdapterFactory
}

// NewEngine creates a new sync engine.
func NewEngine(database *db.DB) *Engine {
	return &Engine{
		db:         database,
		newAdapter: calendar.New,
	}
}

// SyncIntegration performs one sync cycle for a single integration:
// pull first, then push, according to the integration's direction.
func (e *Engine) SyncIntegration(ctx context.Context, integration *db.Integration) *Result {
	start := time.Now()
	result := &Result{
		ErrorMessages: make([]string, 0),
	}

	if err := e.db.UpdateIntegrationSyncStatus(integration.ID, db.IntegrationSyncRunning, "", false); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	adapter, err := e.newAdapter(integration.Type)
	if err != nil {
		result.Message = "Unsupported integration type"
		result.ErrorMessages = append(result.ErrorMessages, err.Error())
		result.Errors++
		result.Duration = time.Since(start)
		e.finishSync(integration.ID, result)
		return result
	}

	if err := adapter.Connect(ctx, integration.Config, integration.Credentials); err != nil {
		result.Message = "Failed to connect to calendar service"
		result.ErrorMessages = append(result.ErrorMessages, err.Error())
		result.Errors++
		result.Duration = time.Since(start)
		e.finishSync(integration.ID, result)
		return result
	}

	if integration.SyncDirection.Pulls() {
		e.pull(ctx, integration, adapter, result)
	}
	if integration.SyncDirection.Pushes() {
		e.push(ctx, integration, adapter, result)
	}

	result.Success = result.Errors == 0
	if result.Success {
		result.Message = fmt.Sprintf("Synced: %d pushed, %d pulled, %d updated, %d conflicts",
			result.Pushed, result.Pulled, result.Updated, result.Conflicts)
	} else {
		result.Message = fmt.Sprintf("Sync completed with %d errors", result.Errors)
	}

	result.Duration = time.Since(start)
	e.finishSync(integration.ID, result)

	return result
}

// TestIntegration connects to the external service and verifies credentials.
func (e *Engine) TestIntegration(ctx context.Context, integration *db.Integration) error {
	adapter, err := e.newAdapter(integration.Type)
	if err != nil {
		return err
	}
	if err := adapter.Connect(ctx, integration.Config, integration.Credentials); err != nil {
		return err
	}
	return adapter.TestConnection(ctx)
}

// pull fetches remote events within the window and reconciles each one
// against local state. Per-event failures are recorded, not fatal.
func (e *Engine) pull(ctx context.Context, integration *db.Integration, adapter calendar.Adapter, result *Result) {
	now := time.Now().UTC()
	window := calendar.Window{
		Start: now.Add(-pullWindowPast),
		End:   now.Add(pullWindowFuture),
	}

	remotes, err := adapter.FetchEvents(ctx, integration.Config.CalendarName, window)
	if err != nil {
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("Failed to fetch remote events: %v", err))
		result.Errors++
		return
	}

	for _, remote := range remotes {
		if err := e.applyRemote(integration, remote, result); err != nil {
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("Failed to apply remote event %s: %v", remote.ExternalID, err))
			result.Errors++
		}
	}
}

// applyRemote reconciles one remote event with local state.
func (e *Engine) applyRemote(integration *db.Integration, remote calendar.RemoteEvent, result *Result) error {
	now := time.Now().UTC()

	local, err := e.db.GetEventByExternalID(integration.UserID, remote.ExternalID)
	if errors.Is(err, db.ErrNotFound) {
		return e.adoptOrCreate(integration, remote, now, result)
	}
	if err != nil {
		return err
	}

	// An event awaiting resolution stays frozen until the user decides.
	if local.SyncStatus == db.EventSyncConflict {
		return nil
	}

	if Detect(local, remote) {
		flagConflict(local, remote)
		if err := e.db.UpdateEvent(local); err != nil {
			return err
		}
		result.Conflicts++
		return nil
	}

	// Remote-side change only, or first contact: remote wins.
	if local.LastSyncedAt == nil || remote.LastModified.After(*local.LastSyncedAt) {
		local.Title = remote.Title
		local.Description = remote.Description
		local.StartTime = remote.Start
		local.EndTime = remote.End
		local.Location = remote.Location
		local.SyncStatus = db.EventSyncSynced
		local.LastSyncedAt = &now
		if err := e.db.UpdateEvent(local); err != nil {
			return err
		}
		result.Updated++
	}

	return nil
}

// adoptOrCreate handles a remote event with no local linkage. An unlinked
// local event with identical title and times adopts the remote UID rather
// than duplicating; this covers a push whose acknowledgement never landed.
func (e *Engine) adoptOrCreate(integration *db.Integration, remote calendar.RemoteEvent, now time.Time, result *Result) error {
	candidate, err := e.db.FindUnlinkedEvent(integration.UserID, remote.Title, remote.Start, remote.End)
	if err == nil {
		candidate.ExternalEventID = remote.ExternalID
		candidate.IntegrationID = integration.ID
		candidate.SyncStatus = db.EventSyncSynced
		candidate.LastSyncedAt = &now
		if err := e.db.UpdateEvent(candidate); err != nil {
			return err
		}
		result.Pulled++
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	event := &db.CalendarEvent{
		UserID:          integration.UserID,
		Title:           remote.Title,
		Description:     remote.Description,
		StartTime:       remote.Start,
		EndTime:         remote.End,
		Location:        remote.Location,
		ExternalEventID: remote.ExternalID,
		IntegrationID:   integration.ID,
		SyncStatus:      db.EventSyncSynced,
		LastSyncedAt:    &now,
	}
	if err := e.db.CreateEvent(event); err != nil {
		return err
	}
	result.Pulled++

	return nil
}

// push sends pending and retryable events outward.
func (e *Engine) push(ctx context.Context, integration *db.Integration, adapter calendar.Adapter, result *Result) {
	events, err := e.db.GetPendingEvents(integration.ID)
	if err != nil {
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("Failed to load pending events: %v", err))
		result.Errors++
		return
	}

	for _, event := range events {
		if err := e.pushEvent(ctx, integration, adapter, event); err != nil {
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("Failed to push event %s: %v", event.ID, err))
			result.Errors++
			continue
		}
		result.Pushed++
	}
}

// pushEvent sends one event outward and marks it synced, or failed on error.
func (e *Engine) pushEvent(ctx context.Context, integration *db.Integration, adapter calendar.Adapter, event *db.CalendarEvent) error {
	fields := calendar.EventFields{
		Title:       event.Title,
		Description: event.Description,
		Start:       event.StartTime,
		End:         event.EndTime,
		Location:    event.Location,
	}

	var pushErr error
	if event.ExternalEventID == "" {
		var uid string
		uid, pushErr = adapter.CreateEvent(ctx, integration.Config.CalendarName, fields)
		if pushErr == nil {
			event.ExternalEventID = uid
		}
	} else {
		pushErr = adapter.UpdateEvent(ctx, event.ExternalEventID, fields)
	}

	if pushErr != nil {
		event.SyncStatus = db.EventSyncFailed
		if err := e.db.UpdateEvent(event); err != nil {
			log.Printf("Failed to mark event %s as failed: %v", event.ID, err)
		}
		return pushErr
	}

	now := time.Now().UTC()
	event.SyncStatus = db.EventSyncSynced
	event.LastSyncedAt = &now
	return e.db.UpdateEvent(event)
}

// finishSync commits the cycle outcome to the integration and its audit log.
func (e *Engine) finishSync(integrationID string, result *Result) {
	status := db.IntegrationSyncSuccess
	if !result.Success {
		status = db.IntegrationSyncError
	}

	errorLog := strings.Join(result.ErrorMessages, "; ")
	if err := e.db.UpdateIntegrationSyncStatus(integrationID, status, errorLog, true); err != nil {
		log.Printf("Failed to update sync status: %v", err)
	}

	syncLog := &db.SyncLog{
		IntegrationID: integrationID,
		Status:        status,
		Message:       result.Message,
		EventsPushed:  result.Pushed,
		EventsPulled:  result.Pulled,
		EventsUpdated: result.Updated,
		Conflicts:     result.Conflicts,
		Errors:        result.Errors,
		Duration:      result.Duration,
	}
	if len(result.ErrorMessages) > 0 {
		syncLog.Details = strings.Join(result.ErrorMessages, "\n")
	}

	if err := e.db.CreateSyncLog(syncLog); err != nil {
		log.Printf("Failed to create sync log: %v", err)
	}
}

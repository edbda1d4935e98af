package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/workmate/workmate/internal/calendar"
	"github.com/workmate/workmate/internal/db"
)

var (
	ErrNotInConflict     = errors.New("event is not in conflict")
	ErrInvalidResolution = errors.New("invalid conflict resolution")
)

// Detect reports whether a linked event was edited on both sides since the
// last successful sync. An event that has never synced cannot conflict: on
// first contact the remote copy wins.
func Detect(local *db.CalendarEvent, remote calendar.RemoteEvent) bool {
	if local.LastSyncedAt == nil {
		return false
	}
	return local.UpdatedAt.After(*local.LastSyncedAt) &&
		remote.LastModified.After(*local.LastSyncedAt)
}

// Resolve applies a user's decision to a conflicted event. Both resolutions
// clear the conflict snapshot and queue the event for a fresh push by
// resetting it to pending with no sync watermark.
func (e *Engine) Resolve(eventID, userID string, resolution db.ConflictResolution) (*db.CalendarEvent, error) {
	if !resolution.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	event, err := e.db.GetEventByIDForUser(eventID, userID)
	if err != nil {
		return nil, err
	}

	if event.SyncStatus != db.EventSyncConflict || event.ConflictData == nil {
		return nil, ErrNotInConflict
	}

	if resolution == db.ResolutionKeepRemote {
		remote := event.ConflictData.Remote
		event.Title = remote.Title
		event.Description = remote.Description
		event.StartTime = remote.StartTime
		event.EndTime = remote.EndTime
		event.Location = remote.Location
	}

	event.ConflictData = nil
	event.SyncStatus = db.EventSyncPending
	event.LastSyncedAt = nil

	if err := e.db.UpdateEvent(event); err != nil {
		return nil, err
	}

	return event, nil
}

// remoteSnapshot captures the comparable fields of a remote event.
func remoteSnapshot(remote calendar.RemoteEvent) db.EventSnapshot {
	return db.EventSnapshot{
		Title:       remote.Title,
		Description: remote.Description,
		StartTime:   remote.Start,
		EndTime:     remote.End,
		Location:    remote.Location,
	}
}

// flagConflict snapshots both sides of a both-edited event.
func flagConflict(local *db.CalendarEvent, remote calendar.RemoteEvent) {
	local.ConflictData = &db.ConflictData{
		Local:      local.Snapshot(),
		Remote:     remoteSnapshot(remote),
		DetectedAt: time.Now().UTC(),
	}
	local.SyncStatus = db.EventSyncConflict
}

package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const eventColumns = `id, user_id, task_id, title, description, start_time, end_time, all_day,
	location, external_event_id, integration_id, sync_status, last_synced_at, conflict_data,
	created_at, updated_at`

// CreateEvent creates a new calendar event.
func (db *DB) CreateEvent(event *CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.SyncStatus == "" {
		event.SyncStatus = EventSyncPending
	}
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = time.Now().UTC()

	if err := event.Validate(); err != nil {
		return err
	}

	conflictJSON, err := marshalConflictData(event.ConflictData)
	if err != nil {
		return err
	}

	query := `INSERT INTO calendar_events (
		id, user_id, task_id, title, description, start_time, end_time, all_day,
		location, external_event_id, integration_id, sync_status, last_synced_at, conflict_data,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.Exec(query,
		event.ID, event.UserID, nullString(event.TaskID), event.Title, event.Description,
		event.StartTime, event.EndTime, event.AllDay, event.Location,
		nullString(event.ExternalEventID), nullString(event.IntegrationID),
		event.SyncStatus, nullTime(event.LastSyncedAt), conflictJSON,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEventByID returns a calendar event by its ID.
func (db *DB) GetEventByID(id string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = ?`
	return scanEvent(db.conn.QueryRow(query, id))
}

// GetEventByIDForUser returns a calendar event owned by the given user.
func (db *DB) GetEventByIDForUser(id, userID string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = ? AND user_id = ?`
	return scanEvent(db.conn.QueryRow(query, id, userID))
}

// GetEventsByUserID returns all events for a user, ordered by start time.
func (db *DB) GetEventsByUserID(userID string) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE user_id = ? ORDER BY start_time`
	return db.queryEvents(query, userID)
}

// GetEventsInRange returns events for a user overlapping the given window.
func (db *DB) GetEventsInRange(userID string, start, end time.Time) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE user_id = ? AND start_time < ? AND end_time > ? ORDER BY start_time`
	return db.queryEvents(query, userID, end, start)
}

// GetEventByExternalID returns the user's event linked to a remote UID.
func (db *DB) GetEventByExternalID(userID, externalEventID string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE user_id = ? AND external_event_id = ?`
	return scanEvent(db.conn.QueryRow(query, userID, externalEventID))
}

// GetPendingEvents returns events on an integration awaiting a push,
// including failed ones due for retry.
func (db *DB) GetPendingEvents(integrationID string) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE integration_id = ? AND sync_status IN (?, ?) ORDER BY start_time`
	return db.queryEvents(query, integrationID, EventSyncPending, EventSyncFailed)
}

// GetConflictEvents returns events on an integration stuck in conflict.
func (db *DB) GetConflictEvents(integrationID string) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE integration_id = ? AND sync_status = ? ORDER BY start_time`
	return db.queryEvents(query, integrationID, EventSyncConflict)
}

// FindUnlinkedEvent returns a user's event with no external linkage whose
// title and times match exactly. Used to adopt a remote copy of an event that
// was pushed but whose acknowledgement never landed.
func (db *DB) FindUnlinkedEvent(userID, title string, start, end time.Time) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE user_id = ? AND external_event_id IS NULL AND title = ?
		AND start_time = ? AND end_time = ? LIMIT 1`
	return scanEvent(db.conn.QueryRow(query, userID, title, start, end))
}

// GetEventByTaskID returns the projection event derived from a task.
func (db *DB) GetEventByTaskID(taskID string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE task_id = ?`
	return scanEvent(db.conn.QueryRow(query, taskID))
}

// GetOrphanedTaskEvents returns task-derived events whose task no longer has
// a due date, or no longer exists, for the given user.
func (db *DB) GetOrphanedTaskEvents(userID string) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumnsPrefixed("e") + ` FROM calendar_events e
		LEFT JOIN tasks t ON t.id = e.task_id
		WHERE e.user_id = ? AND e.task_id IS NOT NULL
		AND (t.id IS NULL OR t.due_date IS NULL)`
	return db.queryEvents(query, userID)
}

// GetCompletedTaskEvents returns task-derived events whose task reached a
// terminal status before the cutoff.
func (db *DB) GetCompletedTaskEvents(userID string, cutoff time.Time) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumnsPrefixed("e") + ` FROM calendar_events e
		JOIN tasks t ON t.id = e.task_id
		WHERE e.user_id = ? AND t.status IN (?, ?)
		AND t.completed_at IS NOT NULL AND t.completed_at < ?`
	return db.queryEvents(query, userID, TaskDone, TaskCancelled, cutoff)
}

// UpdateEvent updates an existing calendar event.
func (db *DB) UpdateEvent(event *CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()

	if err := event.Validate(); err != nil {
		return err
	}

	conflictJSON, err := marshalConflictData(event.ConflictData)
	if err != nil {
		return err
	}

	query := `UPDATE calendar_events SET
		task_id = ?, title = ?, description = ?, start_time = ?, end_time = ?, all_day = ?,
		location = ?, external_event_id = ?, integration_id = ?, sync_status = ?,
		last_synced_at = ?, conflict_data = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		nullString(event.TaskID), event.Title, event.Description,
		event.StartTime, event.EndTime, event.AllDay, event.Location,
		nullString(event.ExternalEventID), nullString(event.IntegrationID),
		event.SyncStatus, nullTime(event.LastSyncedAt), conflictJSON,
		event.UpdatedAt, event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return requireAffected(result)
}

// DeleteEvent deletes a calendar event. The linked task, if any, is untouched.
func (db *DB) DeleteEvent(id string) error {
	result, err := db.conn.Exec(`DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return requireAffected(result)
}

// queryEvents runs a query returning calendar event rows.
func (db *DB) queryEvents(query string, args ...any) ([]*CalendarEvent, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*CalendarEvent
	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// scanEvent scans a single row into a CalendarEvent struct.
func scanEvent(row *sql.Row) (*CalendarEvent, error) {
	event, err := scanEventRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return event, err
}

// scanEventRow scans one calendar event row from any scanner.
func scanEventRow(row rowScanner) (*CalendarEvent, error) {
	event := &CalendarEvent{}
	var taskID, description, location, externalEventID, integrationID, conflictJSON sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&event.ID, &event.UserID, &taskID, &event.Title, &description,
		&event.StartTime, &event.EndTime, &event.AllDay, &location,
		&externalEventID, &integrationID, &event.SyncStatus, &lastSyncedAt, &conflictJSON,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.TaskID = taskID.String
	event.Description = description.String
	event.Location = location.String
	event.ExternalEventID = externalEventID.String
	event.IntegrationID = integrationID.String
	if lastSyncedAt.Valid {
		event.LastSyncedAt = &lastSyncedAt.Time
	}
	if conflictJSON.Valid && conflictJSON.String != "" {
		event.ConflictData = &ConflictData{}
		if err := json.Unmarshal([]byte(conflictJSON.String), event.ConflictData); err != nil {
			return nil, fmt.Errorf("failed to decode conflict data: %w", err)
		}
	}

	return event, nil
}

// eventColumnsPrefixed returns the event column list qualified with a table
// alias, for queries joining other tables.
func eventColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.task_id, ` + alias + `.title, ` +
		alias + `.description, ` + alias + `.start_time, ` + alias + `.end_time, ` +
		alias + `.all_day, ` + alias + `.location, ` + alias + `.external_event_id, ` +
		alias + `.integration_id, ` + alias + `.sync_status, ` + alias + `.last_synced_at, ` +
		alias + `.conflict_data, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// marshalConflictData encodes conflict data for storage, nil when absent.
func marshalConflictData(cd *ConflictData) (any, error) {
	if cd == nil {
		return nil, nil
	}
	data, err := json.Marshal(cd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conflict data: %w", err)
	}
	return string(data), nil
}

// nullTime converts a nil time pointer to NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

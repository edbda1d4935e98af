// Package taskevent projects tasks with due dates onto calendar events.
package taskevent

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/workmate/workmate/internal/db"
)

const defaultDurationMinutes = 60

// Stats summarizes a bulk projection run.
type Stats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Errors    int `json:"errors"`
}

// Mapper keeps task projections and calendar events consistent.
type Mapper struct {
	db *db.DB
}

// NewMapper creates a new task-event mapper.
func NewMapper(database *db.DB) *Mapper {
	return &Mapper{db: database}
}

// CreateFromTask creates the projection event for a task with a due date.
// The event attaches to the user's default integration as pending; without
// one it stays a local-only synced event. Idempotent: a task that already
// has a projection gets its existing event back.
func (m *Mapper) CreateFromTask(task *db.Task) (*db.CalendarEvent, error) {
	if task.DueDate == nil {
		return nil, nil
	}

	existing, err := m.db.GetEventByTaskID(task.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	start, end := eventTimes(task)
	event := &db.CalendarEvent{
		UserID:      task.UserID,
		TaskID:      task.ID,
		Title:       eventTitle(task),
		Description: eventDescription(task),
		StartTime:   start,
		EndTime:     end,
	}

	integration, err := m.db.GetDefaultIntegration(task.UserID)
	if err == nil {
		event.IntegrationID = integration.ID
		event.SyncStatus = db.EventSyncPending
	} else if errors.Is(err, db.ErrNotFound) {
		event.SyncStatus = db.EventSyncSynced
	} else {
		return nil, err
	}

	if err := m.db.CreateEvent(event); err != nil {
		return nil, err
	}

	return event, nil
}

// UpdateFromTask reconciles a task's projection after the task changed.
// The four cases: no due date and no event is a no-op; a due date without an
// event creates one; an event without a due date is removed; otherwise the
// event is refreshed in place.
func (m *Mapper) UpdateFromTask(task *db.Task) error {
	event, err := m.db.GetEventByTaskID(task.ID)
	if errors.Is(err, db.ErrNotFound) {
		if task.DueDate == nil {
			return nil
		}
		_, err := m.CreateFromTask(task)
		return err
	}
	if err != nil {
		return err
	}

	if task.DueDate == nil {
		return m.db.DeleteEvent(event.ID)
	}

	if !applyTask(event, task) {
		return nil
	}
	return m.db.UpdateEvent(event)
}

// BulkSync projects every task of a user that carries a due date, healing
// drift along the way: missing events are created, stale ones refreshed,
// and projections whose task lost its due date are removed. With force set,
// every existing projection is deleted and recreated unconditionally.
func (m *Mapper) BulkSync(userID string, force bool) (*Stats, error) {
	stats := &Stats{}

	tasks, err := m.db.GetTasksWithDueDate(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	for _, task := range tasks {
		stats.Processed++

		event, err := m.db.GetEventByTaskID(task.ID)
		if errors.Is(err, db.ErrNotFound) {
			if _, err := m.CreateFromTask(task); err != nil {
				log.Printf("Failed to create event for task %s: %v", task.ID, err)
				stats.Errors++
				continue
			}
			stats.Created++
			continue
		}
		if err != nil {
			stats.Errors++
			continue
		}

		if force {
			// A forced run rebuilds the projection from scratch, resetting
			// its sync state and re-attaching the user's current default
			// integration.
			if err := m.db.DeleteEvent(event.ID); err != nil {
				log.Printf("Failed to delete event for task %s: %v", task.ID, err)
				stats.Errors++
				continue
			}
			stats.Deleted++
			if _, err := m.CreateFromTask(task); err != nil {
				log.Printf("Failed to recreate event for task %s: %v", task.ID, err)
				stats.Errors++
				continue
			}
			stats.Created++
			continue
		}

		if !applyTask(event, task) {
			continue
		}
		if err := m.db.UpdateEvent(event); err != nil {
			log.Printf("Failed to update event for task %s: %v", task.ID, err)
			stats.Errors++
			continue
		}
		stats.Updated++
	}

	// Sweep projections whose task no longer carries a due date.
	orphans, err := m.db.GetOrphanedTaskEvents(userID)
	if err != nil {
		return stats, fmt.Errorf("failed to find orphaned events: %w", err)
	}
	for _, orphan := range orphans {
		if err := m.db.DeleteEvent(orphan.ID); err != nil {
			log.Printf("Failed to delete orphaned event %s: %v", orphan.ID, err)
			stats.Errors++
			continue
		}
		stats.Deleted++
	}

	return stats, nil
}

// RemoveCompletedEvents deletes projection events whose task reached a
// terminal status more than olderThanDays ago. Returns the number removed.
func (m *Mapper) RemoveCompletedEvents(userID string, olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	events, err := m.db.GetCompletedTaskEvents(userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find completed task events: %w", err)
	}

	removed := 0
	for _, event := range events {
		if err := m.db.DeleteEvent(event.ID); err != nil {
			log.Printf("Failed to delete completed task event %s: %v", event.ID, err)
			continue
		}
		removed++
	}

	return removed, nil
}

// applyTask writes the task projection into the event, reporting whether
// anything changed. A synced event attached to an integration demotes to
// pending so the change is pushed out again.
func applyTask(event *db.CalendarEvent, task *db.Task) bool {
	title := eventTitle(task)
	description := eventDescription(task)
	start, end := eventTimes(task)

	if event.Title == title && event.Description == description &&
		event.StartTime.Equal(start) && event.EndTime.Equal(end) {
		return false
	}

	event.Title = title
	event.Description = description
	event.StartTime = start
	event.EndTime = end

	if event.SyncStatus == db.EventSyncSynced && event.IntegrationID != "" {
		event.SyncStatus = db.EventSyncPending
	}

	return true
}

// eventTimes derives the event window: the task is due at the end, and the
// start backs off by the estimated duration.
func eventTimes(task *db.Task) (time.Time, time.Time) {
	end := task.DueDate.UTC()
	minutes := task.EstimatedDurationMinutes
	if minutes <= 0 {
		minutes = defaultDurationMinutes
	}
	return end.Add(-time.Duration(minutes) * time.Minute), end
}

// eventTitle builds the deterministic event title with a priority marker.
func eventTitle(task *db.Task) string {
	return priorityMarker(task.Priority) + " " + task.Title
}

// priorityMarker maps a task priority to its emoji marker.
func priorityMarker(priority db.TaskPriority) string {
	switch priority {
	case db.PriorityLow:
		return "🔵"
	case db.PriorityMedium:
		return "🟡"
	case db.PriorityHigh:
		return "🟠"
	case db.PriorityCritical:
		return "🔴"
	default:
		return "📋"
	}
}

// eventDescription builds the event description from the task fields.
func eventDescription(task *db.Task) string {
	parts := make([]string, 0, 4)
	if task.Description != "" {
		parts = append(parts, task.Description)
	}
	parts = append(parts, "Status: "+string(task.Status))
	parts = append(parts, "Priority: "+string(task.Priority))
	if task.Amount != 0 {
		parts = append(parts, fmt.Sprintf("Amount: %.2f %s", task.Amount, task.Currency))
	}
	return strings.Join(parts, "\n")
}

package db

import (
	"errors"
	"time"
)

var (
	ErrInvalidTimeRange  = errors.New("event must start before it ends")
	ErrConflictDataState = errors.New("conflict data must be set exactly when sync status is conflict")
)

// EventSyncStatus represents the sync state of a single calendar event.
type EventSyncStatus string

const (
	EventSyncPending  EventSyncStatus = "pending"
	EventSyncSynced   EventSyncStatus = "synced"
	EventSyncFailed   EventSyncStatus = "failed"
	EventSyncConflict EventSyncStatus = "conflict"
)

// ValidEventSyncStatuses contains all valid event sync status values.
var ValidEventSyncStatuses = map[EventSyncStatus]bool{
	EventSyncPending:  true,
	EventSyncSynced:   true,
	EventSyncFailed:   true,
	EventSyncConflict: true,
}

// IsValid returns true if the status is a known valid value.
func (s EventSyncStatus) IsValid() bool {
	return ValidEventSyncStatuses[s]
}

// IntegrationSyncStatus represents the sync state of an integration as a whole.
type IntegrationSyncStatus string

const (
	IntegrationSyncIdle    IntegrationSyncStatus = "idle"
	IntegrationSyncRunning IntegrationSyncStatus = "syncing"
	IntegrationSyncSuccess IntegrationSyncStatus = "success"
	IntegrationSyncError   IntegrationSyncStatus = "error"
)

// ValidIntegrationSyncStatuses contains all valid integration sync status values.
var ValidIntegrationSyncStatuses = map[IntegrationSyncStatus]bool{
	IntegrationSyncIdle:    true,
	IntegrationSyncRunning: true,
	IntegrationSyncSuccess: true,
	IntegrationSyncError:   true,
}

// IsValid returns true if the status is a known valid value.
func (s IntegrationSyncStatus) IsValid() bool {
	return ValidIntegrationSyncStatuses[s]
}

// IntegrationType represents the kind of external calendar service.
type IntegrationType string

const (
	IntegrationCalDAV  IntegrationType = "caldav"
	IntegrationGoogle  IntegrationType = "google_calendar"
	IntegrationOutlook IntegrationType = "outlook_calendar"
)

// ValidIntegrationTypes contains all valid integration type values.
var ValidIntegrationTypes = map[IntegrationType]bool{
	IntegrationCalDAV:  true,
	IntegrationGoogle:  true,
	IntegrationOutlook: true,
}

// IsValid returns true if the integration type is a known valid value.
func (t IntegrationType) IsValid() bool {
	return ValidIntegrationTypes[t]
}

// SyncDirection represents the allowed flow of changes for an integration.
type SyncDirection string

const (
	DirectionToCalendar    SyncDirection = "to_calendar"   // Local -> External only
	DirectionFromCalendar  SyncDirection = "from_calendar" // External -> Local only
	DirectionBidirectional SyncDirection = "bidirectional" // Both ways
)

// ValidSyncDirections contains all valid sync direction values.
var ValidSyncDirections = map[SyncDirection]bool{
	DirectionToCalendar:    true,
	DirectionFromCalendar:  true,
	DirectionBidirectional: true,
}

// IsValid returns true if the sync direction is a known valid value.
func (d SyncDirection) IsValid() bool {
	return ValidSyncDirections[d]
}

// Pulls returns true if the direction allows remote changes to flow in.
func (d SyncDirection) Pulls() bool {
	return d == DirectionFromCalendar || d == DirectionBidirectional
}

// Pushes returns true if the direction allows local changes to flow out.
func (d SyncDirection) Pushes() bool {
	return d == DirectionToCalendar || d == DirectionBidirectional
}

// ConflictResolution represents a user decision for a conflicted event.
type ConflictResolution string

const (
	ResolutionKeepLocal  ConflictResolution = "keep_local"
	ResolutionKeepRemote ConflictResolution = "keep_remote"
)

// ValidConflictResolutions contains all valid resolution values.
var ValidConflictResolutions = map[ConflictResolution]bool{
	ResolutionKeepLocal:  true,
	ResolutionKeepRemote: true,
}

// IsValid returns true if the resolution is a known valid value.
func (r ConflictResolution) IsValid() bool {
	return ValidConflictResolutions[r]
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// ValidTaskStatuses contains all valid task status values.
var ValidTaskStatuses = map[TaskStatus]bool{
	TaskOpen:       true,
	TaskInProgress: true,
	TaskDone:       true,
	TaskCancelled:  true,
}

// IsValid returns true if the task status is a known valid value.
func (s TaskStatus) IsValid() bool {
	return ValidTaskStatuses[s]
}

// IsTerminal returns true for statuses that end a task's life.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskCancelled
}

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// ValidTaskPriorities contains all valid priority values.
var ValidTaskPriorities = map[TaskPriority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// IsValid returns true if the priority is a known valid value.
func (p TaskPriority) IsValid() bool {
	return ValidTaskPriorities[p]
}

// User represents a user in the system.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task represents a task, typically produced by the document pipeline.
type Task struct {
	ID                       string       `json:"id"`
	UserID                   string       `json:"user_id"`
	Title                    string       `json:"title"`
	Description              string       `json:"description"`
	DueDate                  *time.Time   `json:"due_date"`
	EstimatedDurationMinutes int          `json:"estimated_duration_minutes"` // 0 = unset
	Status                   TaskStatus   `json:"status"`
	Priority                 TaskPriority `json:"priority"`
	Amount                   float64      `json:"amount"` // 0 = unset
	Currency                 string       `json:"currency"`
	CompletedAt              *time.Time   `json:"completed_at"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
}

// EventSnapshot captures the comparable fields of an event at a point in time.
type EventSnapshot struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location"`
}

// ConflictData records both sides of a detected edit conflict.
// It is a value: once stored it is only ever cleared, never edited in place.
type ConflictData struct {
	Local      EventSnapshot `json:"local"`
	Remote     EventSnapshot `json:"remote"`
	DetectedAt time.Time     `json:"detected_at"`
}

// CalendarEvent represents a locally-owned scheduling record that may be
// synchronized with an external calendar.
type CalendarEvent struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// TaskID is a weak reference to the source task for derived events.
	// Deleting the event never deletes the task.
	TaskID      string    `json:"task_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location"`

	// External calendar linkage. ExternalEventID is the remote protocol UID.
	ExternalEventID string `json:"external_event_id,omitempty"`
	IntegrationID   string `json:"integration_id,omitempty"`

	SyncStatus   EventSyncStatus `json:"sync_status"`
	LastSyncedAt *time.Time      `json:"last_synced_at"`
	ConflictData *ConflictData   `json:"conflict_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns the comparable fields of the event.
func (e *CalendarEvent) Snapshot() EventSnapshot {
	return EventSnapshot{
		Title:       e.Title,
		Description: e.Description,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Location:    e.Location,
	}
}

// Validate checks the event's structural invariants before it is written.
func (e *CalendarEvent) Validate() error {
	if !e.StartTime.Before(e.EndTime) {
		return ErrInvalidTimeRange
	}
	inConflict := e.SyncStatus == EventSyncConflict
	if inConflict != (e.ConflictData != nil) {
		return ErrConflictDataState
	}
	return nil
}

// IntegrationConfig holds protocol-specific settings for an integration.
type IntegrationConfig struct {
	URL          string `json:"url"`
	CalendarName string `json:"calendar_name"`
}

// IntegrationCredentials is the opaque secret material for an integration.
// This core never inspects it beyond handing it to the calendar adapter.
type IntegrationCredentials struct {
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Integration represents an external calendar service connection.
type Integration struct {
	ID      string          `json:"id"`
	UserID  string          `json:"user_id"`
	Name    string          `json:"name"`
	Type    IntegrationType `json:"integration_type"`
	Enabled bool            `json:"enabled"`

	Config      IntegrationConfig      `json:"config"`
	Credentials IntegrationCredentials `json:"-"` // Never include in JSON

	SyncDirection       SyncDirection `json:"sync_direction"`
	AutoSync            bool          `json:"auto_sync"`
	SyncIntervalMinutes int           `json:"sync_interval_minutes"`

	SyncStatus IntegrationSyncStatus `json:"sync_status"`
	LastSyncAt *time.Time            `json:"last_sync_at"`
	ErrorLog   string                `json:"error_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncLog represents an audit entry for one sync cycle of an integration.
type SyncLog struct {
	ID            string                `json:"id"`
	IntegrationID string                `json:"integration_id"`
	Status        IntegrationSyncStatus `json:"status"`
	Message       string                `json:"message"`
	Details       string                `json:"details"`
	EventsPushed  int                   `json:"events_pushed"`
	EventsPulled  int                   `json:"events_pulled"`
	EventsUpdated int                   `json:"events_updated"`
	Conflicts     int                   `json:"conflicts"`
	Errors        int                   `json:"errors"`
	Duration      time.Duration         `json:"duration"`
	CreatedAt     time.Time             `json:"created_at"`
}

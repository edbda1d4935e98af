package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workmate/workmate/internal/calendar"
	"github.com/workmate/workmate/internal/db"
	calsync "github.com/workmate/workmate/internal/sync"
)

// categorizeConnectionError returns a user-friendly message based on common error patterns.
func categorizeConnectionError(err error) string {
	if err == nil {
		return "Connection failed"
	}
	errStr := strings.ToLower(err.Error())

	// Categorize without exposing internal details
	switch {
	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "lookup"):
		return "Server not found. Please check the URL."
	case strings.Contains(errStr, "connection refused"):
		return "Connection refused. Please verify the server is running."
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "Connection timed out. Please try again."
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "authentication failed"):
		return "Authentication failed. Please check your credentials."
	case strings.Contains(errStr, "403") || strings.Contains(errStr, "forbidden"):
		return "Access denied. Please check your permissions."
	case strings.Contains(errStr, "404") || strings.Contains(errStr, "not found"):
		return "Calendar not found. Please check the URL."
	case strings.Contains(errStr, "certificate") || strings.Contains(errStr, "tls"):
		return "SSL/TLS error. Please verify the server certificate."
	default:
		return "Connection failed. Please check your settings."
	}
}

// ====== Events ======

// APIListEvents returns all events for the user, optionally bounded to a window.
func (h *Handlers) APIListEvents(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	startParam := c.Query("start")
	endParam := c.Query("end")
	if startParam != "" && endParam != "" {
		start, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start parameter"})
			return
		}
		end, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end parameter"})
			return
		}
		events, err := h.db.GetEventsInRange(user.ID, start, end)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
			return
		}
		c.JSON(http.StatusOK, eventList(events))
		return
	}

	events, err := h.db.GetEventsByUserID(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	c.JSON(http.StatusOK, eventList(events))
}

// eventList ensures the JSON response is never null.
func eventList(events []*db.CalendarEvent) []*db.CalendarEvent {
	if events == nil {
		return []*db.CalendarEvent{}
	}
	return events
}

// APIGetEvent returns a single event.
func (h *Handlers) APIGetEvent(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	event, err := h.db.GetEventByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	c.JSON(http.StatusOK, event)
}

// APICreateEventRequest represents the request body for creating an event.
type APICreateEventRequest struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	AllDay        bool      `json:"all_day"`
	Location      string    `json:"location"`
	TaskID        string    `json:"task_id"`
	IntegrationID string    `json:"integration_id"`
}

// APICreateEvent creates a new calendar event. Without an explicit
// integration the event attaches to the user's default integration as
// pending; with no integration at all it stays a local-only synced event.
func (h *Handlers) APICreateEvent(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req APICreateEventRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Title == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title, start_time and end_time are required"})
		return
	}

	if req.TaskID != "" {
		if _, err := h.db.GetTaskByIDForUser(req.TaskID, user.ID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown task"})
			return
		}
	}

	integrationID := req.IntegrationID
	if integrationID != "" {
		if _, err := h.db.GetIntegrationByIDForUser(integrationID, user.ID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown integration"})
			return
		}
	} else {
		integration, err := h.db.GetDefaultIntegration(user.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve default integration"})
			return
		}
		if integration != nil {
			integrationID = integration.ID
		}
	}

	status := db.EventSyncSynced
	if integrationID != "" {
		status = db.EventSyncPending
	}

	event := &db.CalendarEvent{
		UserID:        user.ID,
		TaskID:        req.TaskID,
		Title:         req.Title,
		Description:   req.Description,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		AllDay:        req.AllDay,
		Location:      req.Location,
		IntegrationID: integrationID,
		SyncStatus:    status,
	}

	if err := h.db.CreateEvent(event); err != nil {
		if errors.Is(err, db.ErrInvalidTimeRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Event must start before it ends"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
		return
	}

	c.JSON(http.StatusCreated, event)
}

// APIUpdateEventRequest represents the request body for updating an event.
// Only the provided fields are changed.
type APIUpdateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	AllDay      *bool      `json:"all_day"`
	Location    *string    `json:"location"`
}

// APIUpdateEvent updates an existing event. A synced event linked to an
// integration drops back to pending so the edit gets pushed out.
func (h *Handlers) APIUpdateEvent(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	event, err := h.db.GetEventByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	if event.SyncStatus == db.EventSyncConflict {
		c.JSON(http.StatusConflict, gin.H{"error": "Event is in conflict, resolve it first"})
		return
	}

	var req APIUpdateEventRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	changed := false
	if req.Title != nil && *req.Title != event.Title {
		event.Title = *req.Title
		changed = true
	}
	if req.Description != nil && *req.Description != event.Description {
		event.Description = *req.Description
		changed = true
	}
	if req.StartTime != nil && !req.StartTime.Equal(event.StartTime) {
		event.StartTime = *req.StartTime
		changed = true
	}
	if req.EndTime != nil && !req.EndTime.Equal(event.EndTime) {
		event.EndTime = *req.EndTime
		changed = true
	}
	if req.AllDay != nil && *req.AllDay != event.AllDay {
		event.AllDay = *req.AllDay
		changed = true
	}
	if req.Location != nil && *req.Location != event.Location {
		event.Location = *req.Location
		changed = true
	}

	if !changed {
		c.JSON(http.StatusOK, event)
		return
	}

	if event.SyncStatus == db.EventSyncSynced && event.IntegrationID != "" {
		event.SyncStatus = db.EventSyncPending
	}

	if err := h.db.UpdateEvent(event); err != nil {
		if errors.Is(err, db.ErrInvalidTimeRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Event must start before it ends"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update event"})
		return
	}

	c.JSON(http.StatusOK, event)
}

// APIDeleteEvent deletes an event.
func (h *Handlers) APIDeleteEvent(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	eventID := c.Param("id")
	if _, err := h.db.GetEventByIDForUser(eventID, user.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	if err := h.db.DeleteEvent(eventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

// APIResolveConflictRequest represents the request body for resolving a conflict.
type APIResolveConflictRequest struct {
	Resolution string `json:"resolution"`
}

// APIResolveConflict applies a user decision to a conflicted event.
func (h *Handlers) APIResolveConflict(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req APIResolveConflictRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	event, err := h.engine.Resolve(c.Param("id"), user.ID, db.ConflictResolution(req.Resolution))
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		case errors.Is(err, calsync.ErrInvalidResolution):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Resolution must be keep_local or keep_remote"})
		case errors.Is(err, calsync.ErrNotInConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "Event is not in conflict"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve conflict"})
		}
		return
	}

	c.JSON(http.StatusOK, event)
}

// ====== Integrations ======

// APIListIntegrations returns all integrations for the user.
func (h *Handlers) APIListIntegrations(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integrations, err := h.db.GetIntegrationsByUserID(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load integrations"})
		return
	}
	if integrations == nil {
		integrations = []*db.Integration{}
	}

	c.JSON(http.StatusOK, integrations)
}

// APIGetIntegration returns a single integration.
func (h *Handlers) APIGetIntegration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integration, err := h.db.GetIntegrationByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}

	c.JSON(http.StatusOK, integration)
}

// APICreateIntegrationRequest represents the request body for creating an integration.
type APICreateIntegrationRequest struct {
	Name                string `json:"name"`
	Type                string `json:"integration_type"`
	URL                 string `json:"url"`
	CalendarName        string `json:"calendar_name"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	AccessToken         string `json:"access_token"`
	RefreshToken        string `json:"refresh_token"`
	SyncDirection       string `json:"sync_direction"`
	AutoSync            bool   `json:"auto_sync"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
}

// APICreateIntegration creates a new integration.
func (h *Handlers) APICreateIntegration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req APICreateIntegrationRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	integrationType := db.IntegrationType(req.Type)
	if !integrationType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown integration type"})
		return
	}

	if req.SyncDirection != "" && !db.SyncDirection(req.SyncDirection).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown sync direction"})
		return
	}

	if integrationType == db.IntegrationCalDAV {
		if req.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required for caldav integrations"})
			return
		}
		if err := h.validator.ValidateURL(req.URL, h.cfg.IsProduction()); err != nil {
			log.Printf("Integration URL rejected: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid integration URL"})
			return
		}
	}

	interval := req.SyncIntervalMinutes
	if interval < h.cfg.Sync.MinIntervalMinutes || interval > h.cfg.Sync.MaxIntervalMinutes {
		interval = h.cfg.Sync.MinIntervalMinutes
	}

	integration := &db.Integration{
		UserID:  user.ID,
		Name:    req.Name,
		Type:    integrationType,
		Enabled: true,
		Config: db.IntegrationConfig{
			URL:          req.URL,
			CalendarName: req.CalendarName,
		},
		Credentials: db.IntegrationCredentials{
			Username:     req.Username,
			Password:     req.Password,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
		},
		SyncDirection:       db.SyncDirection(req.SyncDirection),
		AutoSync:            req.AutoSync,
		SyncIntervalMinutes: interval,
	}

	if err := h.db.CreateIntegration(integration); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create integration"})
		return
	}

	h.scheduler.RefreshJob(integration)

	c.JSON(http.StatusCreated, integration)
}

// APIUpdateIntegrationRequest represents the request body for updating an
// integration. Only the provided fields are changed; credentials are only
// replaced when sent.
type APIUpdateIntegrationRequest struct {
	Name                *string `json:"name"`
	URL                 *string `json:"url"`
	CalendarName        *string `json:"calendar_name"`
	Username            *string `json:"username"`
	Password            *string `json:"password"`
	AccessToken         *string `json:"access_token"`
	RefreshToken        *string `json:"refresh_token"`
	SyncDirection       *string `json:"sync_direction"`
	AutoSync            *bool   `json:"auto_sync"`
	SyncIntervalMinutes *int    `json:"sync_interval_minutes"`
	Enabled             *bool   `json:"enabled"`
}

// APIUpdateIntegration updates an existing integration.
func (h *Handlers) APIUpdateIntegration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integration, err := h.db.GetIntegrationByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}

	var req APIUpdateIntegrationRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Name != nil {
		integration.Name = *req.Name
	}
	if req.URL != nil {
		if err := h.validator.ValidateURL(*req.URL, h.cfg.IsProduction()); err != nil {
			log.Printf("Integration URL rejected: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid integration URL"})
			return
		}
		integration.Config.URL = *req.URL
	}
	if req.CalendarName != nil {
		integration.Config.CalendarName = *req.CalendarName
	}
	if req.Username != nil {
		integration.Credentials.Username = *req.Username
	}
	if req.Password != nil {
		integration.Credentials.Password = *req.Password
	}
	if req.AccessToken != nil {
		integration.Credentials.AccessToken = *req.AccessToken
	}
	if req.RefreshToken != nil {
		integration.Credentials.RefreshToken = *req.RefreshToken
	}
	if req.SyncDirection != nil {
		direction := db.SyncDirection(*req.SyncDirection)
		if !direction.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown sync direction"})
			return
		}
		integration.SyncDirection = direction
	}
	if req.AutoSync != nil {
		integration.AutoSync = *req.AutoSync
	}
	if req.SyncIntervalMinutes != nil {
		interval := *req.SyncIntervalMinutes
		if interval < h.cfg.Sync.MinIntervalMinutes || interval > h.cfg.Sync.MaxIntervalMinutes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Sync interval out of range"})
			return
		}
		integration.SyncIntervalMinutes = interval
	}
	if req.Enabled != nil {
		integration.Enabled = *req.Enabled
	}

	if err := h.db.UpdateIntegration(integration); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update integration"})
		return
	}

	h.scheduler.RefreshJob(integration)

	c.JSON(http.StatusOK, integration)
}

// APIDeleteIntegration deletes an integration. Linked events survive and
// become local-only.
func (h *Handlers) APIDeleteIntegration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integrationID := c.Param("id")
	if _, err := h.db.GetIntegrationByIDForUser(integrationID, user.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}

	h.scheduler.RemoveJob(integrationID)

	if err := h.db.DeleteIntegration(integrationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete integration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Integration deleted"})
}

// APITestIntegration verifies connectivity for an integration and lists the
// calendars it can see.
func (h *Handlers) APITestIntegration(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integration, err := h.db.GetIntegrationByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}

	adapter, err := calendar.New(integration.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported integration type"})
		return
	}

	ctx := c.Request.Context()
	if err := adapter.Connect(ctx, integration.Config, integration.Credentials); err != nil {
		log.Printf("Integration test failed for %s: %v", integration.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Connection failed: " + categorizeConnectionError(err)})
		return
	}

	calendars, err := adapter.ListCalendars(ctx)
	if err != nil {
		log.Printf("Calendar listing failed for %s: %v", integration.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to list calendars: " + categorizeConnectionError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Connection successful",
		"calendars": calendars,
	})
}

// APITriggerSync triggers a sync for an integration. Disabled integrations
// are skipped unless force=true.
func (h *Handlers) APITriggerSync(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integration, err := h.db.GetIntegrationByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}

	if !integration.Enabled && c.Query("force") != "true" {
		c.JSON(http.StatusConflict, gin.H{"error": "Integration is disabled"})
		return
	}

	if c.Query("force") == "true" {
		// Run synchronously so the caller gets the result of a forced sync.
		// The scheduler holds the per-integration lock, so a forced run never
		// overlaps a scheduled cycle of the same integration.
		result := h.scheduler.RunSyncNow(c.Request.Context(), integration)
		c.JSON(http.StatusOK, result)
		return
	}

	h.scheduler.TriggerSync(integration.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Sync triggered"})
}

// APIGetSyncLogs returns sync logs for an integration.
func (h *Handlers) APIGetSyncLogs(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	integrationID := c.Param("id")
	if _, err := h.db.GetIntegrationByIDForUser(integrationID, user.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Integration not found"})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	logs, err := h.db.GetSyncLogs(integrationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load logs"})
		return
	}
	if logs == nil {
		logs = []*db.SyncLog{}
	}

	c.JSON(http.StatusOK, logs)
}

// ====== Tasks ======

// APIListTasks returns all tasks for the user.
func (h *Handlers) APIListTasks(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	tasks, err := h.db.GetTasksByUserID(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tasks"})
		return
	}
	if tasks == nil {
		tasks = []*db.Task{}
	}

	c.JSON(http.StatusOK, tasks)
}

// APIGetTask returns a single task.
func (h *Handlers) APIGetTask(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	task, err := h.db.GetTaskByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// APICreateTaskRequest represents the request body for creating a task.
type APICreateTaskRequest struct {
	Title                    string     `json:"title"`
	Description              string     `json:"description"`
	DueDate                  *time.Time `json:"due_date"`
	EstimatedDurationMinutes int        `json:"estimated_duration_minutes"`
	Status                   string     `json:"status"`
	Priority                 string     `json:"priority"`
	Amount                   float64    `json:"amount"`
	Currency                 string     `json:"currency"`
}

// APICreateTask creates a new task and projects it onto the calendar when
// it has a due date.
func (h *Handlers) APICreateTask(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req APICreateTaskRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if req.Status != "" && !db.TaskStatus(req.Status).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown task status"})
		return
	}
	if req.Priority != "" && !db.TaskPriority(req.Priority).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown task priority"})
		return
	}

	task := &db.Task{
		UserID:                   user.ID,
		Title:                    req.Title,
		Description:              req.Description,
		DueDate:                  req.DueDate,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Status:                   db.TaskStatus(req.Status),
		Priority:                 db.TaskPriority(req.Priority),
		Amount:                   req.Amount,
		Currency:                 req.Currency,
	}

	if err := h.db.CreateTask(task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	// Projection failure never fails the task write
	if _, err := h.mapper.CreateFromTask(task); err != nil {
		log.Printf("Failed to project task %s onto calendar: %v", task.ID, err)
	}

	c.JSON(http.StatusCreated, task)
}

// APIUpdateTaskRequest represents the request body for updating a task.
// Only the provided fields are changed.
type APIUpdateTaskRequest struct {
	Title                    *string    `json:"title"`
	Description              *string    `json:"description"`
	DueDate                  *time.Time `json:"due_date"`
	ClearDueDate             bool       `json:"clear_due_date"`
	EstimatedDurationMinutes *int       `json:"estimated_duration_minutes"`
	Status                   *string    `json:"status"`
	Priority                 *string    `json:"priority"`
	Amount                   *float64   `json:"amount"`
	Currency                 *string    `json:"currency"`
}

// APIUpdateTask updates an existing task and keeps its calendar projection
// in step. Moving to a terminal status stamps completed_at.
func (h *Handlers) APIUpdateTask(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	task, err := h.db.GetTaskByIDForUser(c.Param("id"), user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	var req APIUpdateTaskRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	} else if req.ClearDueDate {
		task.DueDate = nil
	}
	if req.EstimatedDurationMinutes != nil {
		task.EstimatedDurationMinutes = *req.EstimatedDurationMinutes
	}
	if req.Status != nil {
		status := db.TaskStatus(*req.Status)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown task status"})
			return
		}
		if status.IsTerminal() && !task.Status.IsTerminal() {
			now := time.Now().UTC()
			task.CompletedAt = &now
		} else if !status.IsTerminal() {
			task.CompletedAt = nil
		}
		task.Status = status
	}
	if req.Priority != nil {
		priority := db.TaskPriority(*req.Priority)
		if !priority.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown task priority"})
			return
		}
		task.Priority = priority
	}
	if req.Amount != nil {
		task.Amount = *req.Amount
	}
	if req.Currency != nil {
		task.Currency = *req.Currency
	}

	if err := h.db.UpdateTask(task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}

	if err := h.mapper.UpdateFromTask(task); err != nil {
		log.Printf("Failed to refresh projection for task %s: %v", task.ID, err)
	}

	c.JSON(http.StatusOK, task)
}

// APIDeleteTask deletes a task and its projection event.
func (h *Handlers) APIDeleteTask(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	taskID := c.Param("id")
	if _, err := h.db.GetTaskByIDForUser(taskID, user.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	if err := h.db.DeleteTask(taskID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// APIBulkSyncTasks reconciles all of the user's dated tasks with their
// projection events. force=true refreshes even unchanged projections.
func (h *Handlers) APIBulkSyncTasks(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.mapper.BulkSync(user.ID, c.Query("force") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync tasks"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// APICleanupCompletedTasks removes projection events of tasks completed
// longer ago than the retention window.
func (h *Handlers) APICleanupCompletedTasks(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	days := h.cfg.Maintenance.CompletedEventRetentionDays
	if d := c.Query("older_than_days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid older_than_days parameter"})
			return
		}
		days = parsed
	}

	removed, err := h.mapper.RemoveCompletedEvents(user.ID, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean up completed tasks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Completed task events removed",
		"removed": removed,
	})
}

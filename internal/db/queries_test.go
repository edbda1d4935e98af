package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a temporary test database.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	// Create a temp directory for the test database
	tempDir, err := os.MkdirTemp("", "workmate-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

// createTestUser creates a test user and returns the user ID.
func createTestUser(t *testing.T, db *DB, email string) string {
	t.Helper()

	user, err := db.GetOrCreateUser(email, "Test User")
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user.ID
}

// createTestIntegration creates a test integration for a user.
func createTestIntegration(t *testing.T, db *DB, userID, name string) *Integration {
	t.Helper()

	integration := &Integration{
		UserID:  userID,
		Name:    name,
		Type:    IntegrationCalDAV,
		Enabled: true,
		Config: IntegrationConfig{
			URL:          "https://example.com/caldav",
			CalendarName: "Personal",
		},
		Credentials: IntegrationCredentials{
			Username: "user",
			Password: "secret",
		},
		AutoSync: true,
	}

	err := db.CreateIntegration(integration)
	if err != nil {
		t.Fatalf("failed to create test integration: %v", err)
	}
	return integration
}

// ============================================================================
// User Tests
// ============================================================================

func TestGetOrCreateUser(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("creates new user", func(t *testing.T) {
		user, err := db.GetOrCreateUser("new@example.com", "New User")
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		if user.ID == "" {
			t.Error("expected user ID to be set")
		}
		if user.Email != "new@example.com" {
			t.Errorf("expected email 'new@example.com', got %q", user.Email)
		}
	})

	t.Run("returns existing user", func(t *testing.T) {
		user1, _ := db.GetOrCreateUser("existing@example.com", "First Name")

		user2, err := db.GetOrCreateUser("existing@example.com", "Different Name")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if user1.ID != user2.ID {
			t.Error("expected same user ID")
		}
		// Name should be original, not updated
		if user2.Name != "First Name" {
			t.Errorf("expected original name 'First Name', got %q", user2.Name)
		}
	})
}

func TestGetUserByID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("returns user by ID", func(t *testing.T) {
		created, _ := db.GetOrCreateUser("byid@example.com", "Test User")

		found, err := db.GetUserByID(created.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if found.Email != created.Email {
			t.Error("expected same user")
		}
	})

	t.Run("returns ErrNotFound for unknown ID", func(t *testing.T) {
		_, err := db.GetUserByID("nonexistent-id")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

// ============================================================================
// Integration Tests
// ============================================================================

func TestCreateIntegration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "integration@example.com")

	t.Run("creates integration with all fields", func(t *testing.T) {
		integration := &Integration{
			UserID:  userID,
			Name:    "Work Calendar",
			Type:    IntegrationCalDAV,
			Enabled: true,
			Config: IntegrationConfig{
				URL:          "https://caldav.example.com/",
				CalendarName: "Work",
			},
			Credentials: IntegrationCredentials{
				Username: "worker",
				Password: "pwd",
			},
			SyncDirection:       DirectionToCalendar,
			AutoSync:            true,
			SyncIntervalMinutes: 30,
		}

		err := db.CreateIntegration(integration)
		if err != nil {
			t.Fatalf("failed to create integration: %v", err)
		}

		if integration.ID == "" {
			t.Error("expected ID to be generated")
		}
		if integration.SyncStatus != IntegrationSyncIdle {
			t.Errorf("expected status idle, got %q", integration.SyncStatus)
		}
	})

	t.Run("defaults sync direction to bidirectional", func(t *testing.T) {
		integration := &Integration{
			UserID:  userID,
			Name:    "Default Direction",
			Type:    IntegrationCalDAV,
			Enabled: true,
			Config:  IntegrationConfig{URL: "https://example.com/"},
		}
		db.CreateIntegration(integration)

		retrieved, _ := db.GetIntegrationByID(integration.ID)
		if retrieved.SyncDirection != DirectionBidirectional {
			t.Errorf("expected bidirectional, got %q", retrieved.SyncDirection)
		}
		if retrieved.SyncIntervalMinutes != 15 {
			t.Errorf("expected default interval 15, got %d", retrieved.SyncIntervalMinutes)
		}
	})

	t.Run("round-trips config and credentials", func(t *testing.T) {
		integration := createTestIntegration(t, db, userID, "Roundtrip")

		retrieved, err := db.GetIntegrationByID(integration.ID)
		if err != nil {
			t.Fatalf("failed to get integration: %v", err)
		}
		if retrieved.Config.URL != "https://example.com/caldav" {
			t.Errorf("wrong config URL: %q", retrieved.Config.URL)
		}
		if retrieved.Credentials.Password != "secret" {
			t.Error("credentials not preserved")
		}
	})
}

func TestGetIntegrationByIDForUser(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	user1ID := createTestUser(t, db, "user1-int@example.com")
	user2ID := createTestUser(t, db, "user2-int@example.com")
	integration := createTestIntegration(t, db, user1ID, "User1 Integration")

	t.Run("returns integration for correct user", func(t *testing.T) {
		found, err := db.GetIntegrationByIDForUser(integration.ID, user1ID)
		if err != nil {
			t.Fatalf("failed to get integration: %v", err)
		}
		if found.Name != "User1 Integration" {
			t.Error("wrong integration returned")
		}
	})

	t.Run("returns ErrNotFound for wrong user", func(t *testing.T) {
		_, err := db.GetIntegrationByIDForUser(integration.ID, user2ID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetAutoSyncIntegrations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "autosync@example.com")
	auto := createTestIntegration(t, db, userID, "Auto")

	manual := &Integration{
		UserID:   userID,
		Name:     "Manual",
		Type:     IntegrationCalDAV,
		Enabled:  true,
		Config:   IntegrationConfig{URL: "https://example.com/"},
		AutoSync: false,
	}
	db.CreateIntegration(manual)

	disabled := &Integration{
		UserID:   userID,
		Name:     "Disabled",
		Type:     IntegrationCalDAV,
		Enabled:  false,
		Config:   IntegrationConfig{URL: "https://example.com/"},
		AutoSync: true,
	}
	db.CreateIntegration(disabled)

	integrations, err := db.GetAutoSyncIntegrations()
	if err != nil {
		t.Fatalf("failed to get auto-sync integrations: %v", err)
	}

	found := false
	for _, i := range integrations {
		if i.ID == auto.ID {
			found = true
		}
		if i.ID == manual.ID {
			t.Error("should not include manual integration")
		}
		if i.ID == disabled.ID {
			t.Error("should not include disabled integration")
		}
	}
	if !found {
		t.Error("should include auto-sync integration")
	}
}

func TestGetDefaultIntegration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "default@example.com")

	t.Run("returns ErrNotFound with no integrations", func(t *testing.T) {
		_, err := db.GetDefaultIntegration(userID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("skips pull-only integrations", func(t *testing.T) {
		pullOnly := &Integration{
			UserID:        userID,
			Name:          "Pull Only",
			Type:          IntegrationCalDAV,
			Enabled:       true,
			Config:        IntegrationConfig{URL: "https://example.com/"},
			SyncDirection: DirectionFromCalendar,
		}
		db.CreateIntegration(pullOnly)

		_, err := db.GetDefaultIntegration(userID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returns first pushing integration", func(t *testing.T) {
		pushing := createTestIntegration(t, db, userID, "Pushing")

		found, err := db.GetDefaultIntegration(userID)
		if err != nil {
			t.Fatalf("failed to get default integration: %v", err)
		}
		if found.ID != pushing.ID {
			t.Error("wrong integration returned")
		}
	})
}

func TestUpdateIntegrationSyncStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "syncstatus@example.com")
	integration := createTestIntegration(t, db, userID, "Status Test")

	t.Run("syncing does not stamp last_sync_at", func(t *testing.T) {
		err := db.UpdateIntegrationSyncStatus(integration.ID, IntegrationSyncRunning, "", false)
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		updated, _ := db.GetIntegrationByID(integration.ID)
		if updated.SyncStatus != IntegrationSyncRunning {
			t.Errorf("expected status syncing, got %q", updated.SyncStatus)
		}
		if updated.LastSyncAt != nil {
			t.Error("expected LastSyncAt to stay unset")
		}
	})

	t.Run("success stamps last_sync_at", func(t *testing.T) {
		err := db.UpdateIntegrationSyncStatus(integration.ID, IntegrationSyncSuccess, "", true)
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		updated, _ := db.GetIntegrationByID(integration.ID)
		if updated.SyncStatus != IntegrationSyncSuccess {
			t.Errorf("expected status success, got %q", updated.SyncStatus)
		}
		if updated.LastSyncAt == nil {
			t.Error("expected LastSyncAt to be set")
		}
	})

	t.Run("error records error log", func(t *testing.T) {
		err := db.UpdateIntegrationSyncStatus(integration.ID, IntegrationSyncError, "connection refused", true)
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		updated, _ := db.GetIntegrationByID(integration.ID)
		if updated.ErrorLog != "connection refused" {
			t.Errorf("expected error log, got %q", updated.ErrorLog)
		}
	})

	t.Run("returns ErrNotFound for nonexistent integration", func(t *testing.T) {
		err := db.UpdateIntegrationSyncStatus("nonexistent-id", IntegrationSyncError, "x", false)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteIntegration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "delete-int@example.com")
	integration := createTestIntegration(t, db, userID, "To Delete")

	t.Run("detaches events instead of deleting them", func(t *testing.T) {
		now := time.Now().UTC()
		event := &CalendarEvent{
			UserID:          userID,
			Title:           "Linked Event",
			StartTime:       now,
			EndTime:         now.Add(time.Hour),
			IntegrationID:   integration.ID,
			ExternalEventID: "remote-uid-1",
			SyncStatus:      EventSyncSynced,
			LastSyncedAt:    &now,
		}
		if err := db.CreateEvent(event); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}

		if err := db.DeleteIntegration(integration.ID); err != nil {
			t.Fatalf("failed to delete integration: %v", err)
		}

		survivor, err := db.GetEventByID(event.ID)
		if err != nil {
			t.Fatalf("event should survive integration deletion: %v", err)
		}
		if survivor.IntegrationID != "" {
			t.Errorf("expected empty integration ID, got %q", survivor.IntegrationID)
		}
	})

	t.Run("returns ErrNotFound for nonexistent integration", func(t *testing.T) {
		err := db.DeleteIntegration("nonexistent-id")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

// ============================================================================
// Event Tests
// ============================================================================

func TestCreateEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "event@example.com")
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("creates event with defaults", func(t *testing.T) {
		event := &CalendarEvent{
			UserID:    userID,
			Title:     "Meeting",
			StartTime: now,
			EndTime:   now.Add(time.Hour),
		}

		err := db.CreateEvent(event)
		if err != nil {
			t.Fatalf("failed to create event: %v", err)
		}

		if event.ID == "" {
			t.Error("expected ID to be generated")
		}
		if event.SyncStatus != EventSyncPending {
			t.Errorf("expected status pending, got %q", event.SyncStatus)
		}
	})

	t.Run("rejects event ending before it starts", func(t *testing.T) {
		event := &CalendarEvent{
			UserID:    userID,
			Title:     "Backwards",
			StartTime: now.Add(time.Hour),
			EndTime:   now,
		}

		err := db.CreateEvent(event)
		if !errors.Is(err, ErrInvalidTimeRange) {
			t.Errorf("expected ErrInvalidTimeRange, got %v", err)
		}
	})

	t.Run("rejects conflict data without conflict status", func(t *testing.T) {
		event := &CalendarEvent{
			UserID:     userID,
			Title:      "Bad State",
			StartTime:  now,
			EndTime:    now.Add(time.Hour),
			SyncStatus: EventSyncPending,
			ConflictData: &ConflictData{
				DetectedAt: now,
			},
		}

		err := db.CreateEvent(event)
		if !errors.Is(err, ErrConflictDataState) {
			t.Errorf("expected ErrConflictDataState, got %v", err)
		}
	})
}

func TestConflictDataRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "conflict@example.com")
	now := time.Now().UTC().Truncate(time.Second)

	event := &CalendarEvent{
		UserID:     userID,
		Title:      "Contested",
		StartTime:  now,
		EndTime:    now.Add(time.Hour),
		SyncStatus: EventSyncConflict,
		ConflictData: &ConflictData{
			Local:      EventSnapshot{Title: "Local Title", StartTime: now, EndTime: now.Add(time.Hour)},
			Remote:     EventSnapshot{Title: "Remote Title", StartTime: now, EndTime: now.Add(2 * time.Hour)},
			DetectedAt: now,
		},
	}
	if err := db.CreateEvent(event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	retrieved, err := db.GetEventByID(event.ID)
	if err != nil {
		t.Fatalf("failed to get event: %v", err)
	}
	if retrieved.ConflictData == nil {
		t.Fatal("expected conflict data")
	}
	if retrieved.ConflictData.Local.Title != "Local Title" {
		t.Errorf("wrong local title: %q", retrieved.ConflictData.Local.Title)
	}
	if retrieved.ConflictData.Remote.Title != "Remote Title" {
		t.Errorf("wrong remote title: %q", retrieved.ConflictData.Remote.Title)
	}
	if !retrieved.ConflictData.Remote.EndTime.Equal(now.Add(2 * time.Hour)) {
		t.Error("remote end time not preserved")
	}
}

func TestGetEventByExternalID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "external@example.com")
	integration := createTestIntegration(t, db, userID, "External Test")
	now := time.Now().UTC().Truncate(time.Second)

	event := &CalendarEvent{
		UserID:          userID,
		Title:           "Remote Linked",
		StartTime:       now,
		EndTime:         now.Add(time.Hour),
		IntegrationID:   integration.ID,
		ExternalEventID: "uid-abc@example.com",
		SyncStatus:      EventSyncSynced,
		LastSyncedAt:    &now,
	}
	if err := db.CreateEvent(event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	t.Run("finds event by external ID", func(t *testing.T) {
		found, err := db.GetEventByExternalID(userID, "uid-abc@example.com")
		if err != nil {
			t.Fatalf("failed to get event: %v", err)
		}
		if found.ID != event.ID {
			t.Error("wrong event returned")
		}
	})

	t.Run("returns ErrNotFound for unknown UID", func(t *testing.T) {
		_, err := db.GetEventByExternalID(userID, "unknown-uid")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("scoped to user", func(t *testing.T) {
		otherUserID := createTestUser(t, db, "other-ext@example.com")
		_, err := db.GetEventByExternalID(otherUserID, "uid-abc@example.com")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetPendingEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "pending@example.com")
	integration := createTestIntegration(t, db, userID, "Pending Test")
	now := time.Now().UTC().Truncate(time.Second)

	makeEvent := func(title string, status EventSyncStatus) {
		t.Helper()
		event := &CalendarEvent{
			UserID:        userID,
			Title:         title,
			StartTime:     now,
			EndTime:       now.Add(time.Hour),
			IntegrationID: integration.ID,
			SyncStatus:    status,
		}
		if status == EventSyncSynced {
			event.LastSyncedAt = &now
			event.ExternalEventID = "uid-" + title
		}
		if err := db.CreateEvent(event); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
	}

	makeEvent("Pending One", EventSyncPending)
	makeEvent("Failed One", EventSyncFailed)
	makeEvent("Synced One", EventSyncSynced)

	events, err := db.GetPendingEvents(integration.ID)
	if err != nil {
		t.Fatalf("failed to get pending events: %v", err)
	}

	// Pending and failed are both due for a push; synced is not.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.SyncStatus == EventSyncSynced {
			t.Error("should not include synced events")
		}
	}
}

func TestFindUnlinkedEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "unlinked@example.com")
	now := time.Now().UTC().Truncate(time.Second)

	unlinked := &CalendarEvent{
		UserID:    userID,
		Title:     "Dentist",
		StartTime: now,
		EndTime:   now.Add(time.Hour),
	}
	if err := db.CreateEvent(unlinked); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	t.Run("matches exact title and times", func(t *testing.T) {
		found, err := db.FindUnlinkedEvent(userID, "Dentist", now, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("failed to find event: %v", err)
		}
		if found.ID != unlinked.ID {
			t.Error("wrong event returned")
		}
	})

	t.Run("does not match different times", func(t *testing.T) {
		_, err := db.FindUnlinkedEvent(userID, "Dentist", now.Add(time.Minute), now.Add(time.Hour))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ignores events already linked", func(t *testing.T) {
		linked := &CalendarEvent{
			UserID:          userID,
			Title:           "Linked Dentist",
			StartTime:       now,
			EndTime:         now.Add(time.Hour),
			ExternalEventID: "uid-linked",
		}
		db.CreateEvent(linked)

		_, err := db.FindUnlinkedEvent(userID, "Linked Dentist", now, now.Add(time.Hour))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetEventsInRange(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "range@example.com")
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, title := range []string{"Day One", "Day Two", "Day Three"} {
		event := &CalendarEvent{
			UserID:    userID,
			Title:     title,
			StartTime: base.AddDate(0, 0, i),
			EndTime:   base.AddDate(0, 0, i).Add(time.Hour),
		}
		if err := db.CreateEvent(event); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
	}

	events, err := db.GetEventsInRange(userID, base.Add(-time.Hour), base.AddDate(0, 0, 1).Add(2*time.Hour))
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in range, got %d", len(events))
	}
	if events[0].Title != "Day One" {
		t.Errorf("expected 'Day One' first, got %q", events[0].Title)
	}
}

// ============================================================================
// Task Tests
// ============================================================================

func TestCreateTask(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "task@example.com")

	t.Run("creates task with defaults", func(t *testing.T) {
		task := &Task{
			UserID: userID,
			Title:  "Pay invoice",
		}

		err := db.CreateTask(task)
		if err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if task.ID == "" {
			t.Error("expected ID to be generated")
		}
		if task.Status != TaskOpen {
			t.Errorf("expected status open, got %q", task.Status)
		}
		if task.Priority != PriorityMedium {
			t.Errorf("expected priority medium, got %q", task.Priority)
		}
	})

	t.Run("round-trips all fields", func(t *testing.T) {
		due := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
		task := &Task{
			UserID:                   userID,
			Title:                    "Full Task",
			Description:              "With everything",
			DueDate:                  &due,
			EstimatedDurationMinutes: 30,
			Status:                   TaskInProgress,
			Priority:                 PriorityHigh,
			Amount:                   129.99,
			Currency:                 "USD",
		}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		retrieved, err := db.GetTaskByID(task.ID)
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}
		if retrieved.DueDate == nil || !retrieved.DueDate.Equal(due) {
			t.Error("due date not preserved")
		}
		if retrieved.EstimatedDurationMinutes != 30 {
			t.Errorf("expected duration 30, got %d", retrieved.EstimatedDurationMinutes)
		}
		if retrieved.Amount != 129.99 {
			t.Errorf("expected amount 129.99, got %v", retrieved.Amount)
		}
		if retrieved.Currency != "USD" {
			t.Errorf("expected currency USD, got %q", retrieved.Currency)
		}
	})
}

func TestGetTasksWithDueDate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "duedate@example.com")
	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	withDue := &Task{UserID: userID, Title: "Scheduled", DueDate: &due}
	db.CreateTask(withDue)

	noDue := &Task{UserID: userID, Title: "Unscheduled"}
	db.CreateTask(noDue)

	completedAt := time.Now().UTC()
	done := &Task{UserID: userID, Title: "Finished", DueDate: &due, Status: TaskDone, CompletedAt: &completedAt}
	db.CreateTask(done)

	tasks, err := db.GetTasksWithDueDate(userID)
	if err != nil {
		t.Fatalf("failed to get tasks: %v", err)
	}

	// Status never filters projection eligibility; only the due date does.
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.ID == noDue.ID {
			t.Error("expected task without due date to be excluded")
		}
	}
}

func TestDeleteTaskCascadesEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "cascade@example.com")
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	task := &Task{UserID: userID, Title: "Doomed", DueDate: &due}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	event := &CalendarEvent{
		UserID:    userID,
		TaskID:    task.ID,
		Title:     "Doomed Event",
		StartTime: due.Add(-time.Hour),
		EndTime:   due,
	}
	if err := db.CreateEvent(event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if err := db.DeleteTask(task.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}

	_, err := db.GetEventByID(event.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Error("event should be deleted with its task")
	}
}

func TestGetOrphanedTaskEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "orphan@example.com")
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	// Task that lost its due date after the event was created
	task := &Task{UserID: userID, Title: "Descheduled", DueDate: &due}
	db.CreateTask(task)
	orphan := &CalendarEvent{
		UserID:    userID,
		TaskID:    task.ID,
		Title:     "Orphaned",
		StartTime: due.Add(-time.Hour),
		EndTime:   due,
	}
	db.CreateEvent(orphan)

	task.DueDate = nil
	if err := db.UpdateTask(task); err != nil {
		t.Fatalf("failed to update task: %v", err)
	}

	// Healthy task-event pair
	healthy := &Task{UserID: userID, Title: "Healthy", DueDate: &due}
	db.CreateTask(healthy)
	db.CreateEvent(&CalendarEvent{
		UserID:    userID,
		TaskID:    healthy.ID,
		Title:     "Healthy Event",
		StartTime: due.Add(-time.Hour),
		EndTime:   due,
	})

	// Standalone event, not task-derived
	db.CreateEvent(&CalendarEvent{
		UserID:    userID,
		Title:     "Standalone",
		StartTime: due,
		EndTime:   due.Add(time.Hour),
	})

	orphans, err := db.GetOrphanedTaskEvents(userID)
	if err != nil {
		t.Fatalf("failed to get orphaned events: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("expected 1 orphaned event, got %d", len(orphans))
	}
	if orphans[0].ID != orphan.ID {
		t.Error("wrong event returned")
	}
}

func TestGetCompletedTaskEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "completed@example.com")
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	oldCompletion := time.Now().UTC().Add(-48 * time.Hour)
	recentCompletion := time.Now().UTC().Add(-time.Hour)

	makePair := func(title string, status TaskStatus, completedAt *time.Time) string {
		t.Helper()
		task := &Task{UserID: userID, Title: title, DueDate: &due, Status: status, CompletedAt: completedAt}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
		event := &CalendarEvent{
			UserID:    userID,
			TaskID:    task.ID,
			Title:     title,
			StartTime: due.Add(-time.Hour),
			EndTime:   due,
		}
		if err := db.CreateEvent(event); err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
		return event.ID
	}

	oldDoneEventID := makePair("Old Done", TaskDone, &oldCompletion)
	makePair("Recent Done", TaskDone, &recentCompletion)
	makePair("Still Open", TaskOpen, nil)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	events, err := db.GetCompletedTaskEvents(userID, cutoff)
	if err != nil {
		t.Fatalf("failed to get completed task events: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID != oldDoneEventID {
		t.Error("wrong event returned")
	}
}

// ============================================================================
// SyncLog Tests
// ============================================================================

func TestSyncLog(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	userID := createTestUser(t, db, "synclog@example.com")
	integration := createTestIntegration(t, db, userID, "Sync Log Test")

	t.Run("creates and retrieves sync logs", func(t *testing.T) {
		log := &SyncLog{
			IntegrationID: integration.ID,
			Status:        IntegrationSyncSuccess,
			Message:       "Sync completed",
			EventsPushed:  3,
			EventsPulled:  7,
			EventsUpdated: 2,
			Conflicts:     1,
			Errors:        0,
			Duration:      5 * time.Second,
		}

		err := db.CreateSyncLog(log)
		if err != nil {
			t.Fatalf("failed to create log: %v", err)
		}
		if log.ID == "" {
			t.Error("expected ID to be generated")
		}

		logs, err := db.GetSyncLogs(integration.ID, 10)
		if err != nil {
			t.Fatalf("failed to get logs: %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("expected 1 log, got %d", len(logs))
		}
		if logs[0].EventsPulled != 7 {
			t.Errorf("expected 7 pulled, got %d", logs[0].EventsPulled)
		}
		if logs[0].Duration != 5*time.Second {
			t.Errorf("expected 5s duration, got %v", logs[0].Duration)
		}
	})

	t.Run("get logs respects limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			db.CreateSyncLog(&SyncLog{
				IntegrationID: integration.ID,
				Status:        IntegrationSyncSuccess,
				Message:       "Log entry",
			})
		}

		logs, _ := db.GetSyncLogs(integration.ID, 3)
		if len(logs) != 3 {
			t.Errorf("expected 3 logs with limit, got %d", len(logs))
		}
	})

	t.Run("clean old logs", func(t *testing.T) {
		deleted, err := db.CleanOldSyncLogs(time.Now().Add(-24 * time.Hour))
		if err != nil {
			t.Fatalf("failed to clean logs: %v", err)
		}
		// All logs above are recent
		if deleted != 0 {
			t.Logf("deleted %d old logs", deleted)
		}
	})
}

// ============================================================================
// Database Connection Tests
// ============================================================================

func TestDatabaseConnection(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("ping succeeds", func(t *testing.T) {
		err := db.Ping()
		if err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("conn returns connection", func(t *testing.T) {
		conn := db.Conn()
		if conn == nil {
			t.Error("expected non-nil connection")
		}
	})
}

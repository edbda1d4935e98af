package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateUser returns an existing user by email or creates a new one.
func (db *DB) GetOrCreateUser(email, name string) (*User, error) {
	user, err := db.GetUserByEmail(email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = &User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err = db.conn.Exec(query, user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns a user by their email address.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE email = ?`
	row := db.conn.QueryRow(query, email)

	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetUserByID returns a user by their ID.
func (db *DB) GetUserByID(id string) (*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE id = ?`
	row := db.conn.QueryRow(query, id)

	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// ListUsers returns all users.
func (db *DB) ListUsers() ([]*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users ORDER BY created_at`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

const integrationColumns = `id, user_id, name, integration_type, enabled, config, credentials,
	sync_direction, auto_sync, sync_interval_minutes, sync_status, last_sync_at, error_log,
	created_at, updated_at`

// CreateIntegration creates a new integration.
func (db *DB) CreateIntegration(integration *Integration) error {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}
	integration.CreatedAt = time.Now().UTC()
	integration.UpdatedAt = time.Now().UTC()
	if integration.SyncStatus == "" {
		integration.SyncStatus = IntegrationSyncIdle
	}
	if integration.SyncDirection == "" {
		integration.SyncDirection = DirectionBidirectional
	}
	if integration.SyncIntervalMinutes <= 0 {
		integration.SyncIntervalMinutes = 15
	}

	configJSON, credsJSON, err := marshalIntegrationBlobs(integration)
	if err != nil {
		return err
	}

	query := `INSERT INTO integrations (
		id, user_id, name, integration_type, enabled, config, credentials,
		sync_direction, auto_sync, sync_interval_minutes, sync_status, error_log,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.Exec(query,
		integration.ID, integration.UserID, integration.Name, integration.Type,
		integration.Enabled, configJSON, credsJSON,
		integration.SyncDirection, integration.AutoSync, integration.SyncIntervalMinutes,
		integration.SyncStatus, integration.ErrorLog,
		integration.CreatedAt, integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

// GetIntegrationByID returns an integration by its ID.
func (db *DB) GetIntegrationByID(id string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ?`
	return scanIntegration(db.conn.QueryRow(query, id))
}

// GetIntegrationByIDForUser returns an integration owned by the given user.
func (db *DB) GetIntegrationByIDForUser(id, userID string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ? AND user_id = ?`
	return scanIntegration(db.conn.QueryRow(query, id, userID))
}

// GetIntegrationsByUserID returns all integrations for a user.
func (db *DB) GetIntegrationsByUserID(userID string) ([]*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = ? ORDER BY name`
	return db.queryIntegrations(query, userID)
}

// GetAutoSyncIntegrations returns all enabled integrations with auto-sync on.
func (db *DB) GetAutoSyncIntegrations() ([]*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE enabled = 1 AND auto_sync = 1`
	return db.queryIntegrations(query)
}

// GetDefaultIntegration returns the first enabled integration for a user that
// can carry local events outward (to_calendar or bidirectional), or ErrNotFound.
func (db *DB) GetDefaultIntegration(userID string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations
		WHERE user_id = ? AND enabled = 1 AND sync_direction IN (?, ?)
		ORDER BY created_at LIMIT 1`
	return scanIntegration(db.conn.QueryRow(query, userID, DirectionBidirectional, DirectionToCalendar))
}

// UpdateIntegration updates an existing integration.
func (db *DB) UpdateIntegration(integration *Integration) error {
	integration.UpdatedAt = time.Now().UTC()

	configJSON, credsJSON, err := marshalIntegrationBlobs(integration)
	if err != nil {
		return err
	}

	query := `UPDATE integrations SET
		name = ?, integration_type = ?, enabled = ?, config = ?, credentials = ?,
		sync_direction = ?, auto_sync = ?, sync_interval_minutes = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		integration.Name, integration.Type, integration.Enabled, configJSON, credsJSON,
		integration.SyncDirection, integration.AutoSync, integration.SyncIntervalMinutes,
		integration.UpdatedAt, integration.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}

	return requireAffected(result)
}

// UpdateIntegrationSyncStatus updates the sync status of an integration.
// Passing stampLastSync stamps last_sync_at with the current time; status
// transitions into `syncing` leave the previous timestamp untouched.
func (db *DB) UpdateIntegrationSyncStatus(id string, status IntegrationSyncStatus, errorLog string, stampLastSync bool) error {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	if stampLastSync {
		query := `UPDATE integrations SET sync_status = ?, error_log = ?, last_sync_at = ?, updated_at = ? WHERE id = ?`
		result, err = db.conn.Exec(query, status, nullString(errorLog), now, now, id)
	} else {
		query := `UPDATE integrations SET sync_status = ?, error_log = ?, updated_at = ? WHERE id = ?`
		result, err = db.conn.Exec(query, status, nullString(errorLog), now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update integration sync status: %w", err)
	}

	return requireAffected(result)
}

// DeleteIntegration deletes an integration. Its events are detached, not
// deleted, via the ON DELETE SET NULL foreign key.
func (db *DB) DeleteIntegration(id string) error {
	result, err := db.conn.Exec(`DELETE FROM integrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return requireAffected(result)
}

// CreateSyncLog creates a new sync log entry.
func (db *DB) CreateSyncLog(log *SyncLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now().UTC()

	query := `INSERT INTO sync_logs (id, integration_id, status, message, details,
		events_pushed, events_pulled, events_updated, conflicts, errors, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query, log.ID, log.IntegrationID, log.Status, log.Message, log.Details,
		log.EventsPushed, log.EventsPulled, log.EventsUpdated, log.Conflicts, log.Errors,
		log.Duration.Milliseconds(), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}

// GetSyncLogs returns sync logs for an integration, newest first.
func (db *DB) GetSyncLogs(integrationID string, limit int) ([]*SyncLog, error) {
	query := `SELECT id, integration_id, status, message, details,
		events_pushed, events_pulled, events_updated, conflicts, errors, duration_ms, created_at
		FROM sync_logs WHERE integration_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.Query(query, integrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		log := &SyncLog{}
		var message, details sql.NullString
		var durationMs int64
		err := rows.Scan(&log.ID, &log.IntegrationID, &log.Status, &message, &details,
			&log.EventsPushed, &log.EventsPulled, &log.EventsUpdated, &log.Conflicts, &log.Errors,
			&durationMs, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		log.Message = message.String
		log.Details = details.String
		log.Duration = time.Duration(durationMs) * time.Millisecond
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return logs, nil
}

// CleanOldSyncLogs deletes sync logs older than the given time.
func (db *DB) CleanOldSyncLogs(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM sync_logs WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean old sync logs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// queryIntegrations runs a query returning integration rows.
func (db *DB) queryIntegrations(query string, args ...any) ([]*Integration, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*Integration
	for rows.Next() {
		integration, err := scanIntegrationRow(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanIntegration scans a single row into an Integration struct.
func scanIntegration(row *sql.Row) (*Integration, error) {
	integration, err := scanIntegrationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return integration, err
}

// scanIntegrationRow scans one integration row from any scanner.
func scanIntegrationRow(row rowScanner) (*Integration, error) {
	integration := &Integration{}
	var configJSON string
	var credsJSON, errorLog sql.NullString
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&integration.ID, &integration.UserID, &integration.Name, &integration.Type,
		&integration.Enabled, &configJSON, &credsJSON,
		&integration.SyncDirection, &integration.AutoSync, &integration.SyncIntervalMinutes,
		&integration.SyncStatus, &lastSyncAt, &errorLog,
		&integration.CreatedAt, &integration.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &integration.Config); err != nil {
		return nil, fmt.Errorf("failed to decode integration config: %w", err)
	}
	if credsJSON.Valid && credsJSON.String != "" {
		if err := json.Unmarshal([]byte(credsJSON.String), &integration.Credentials); err != nil {
			return nil, fmt.Errorf("failed to decode integration credentials: %w", err)
		}
	}
	if lastSyncAt.Valid {
		integration.LastSyncAt = &lastSyncAt.Time
	}
	integration.ErrorLog = errorLog.String

	return integration, nil
}

// marshalIntegrationBlobs encodes config and credentials for storage.
func marshalIntegrationBlobs(integration *Integration) (string, string, error) {
	configJSON, err := json.Marshal(integration.Config)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode integration config: %w", err)
	}
	credsJSON, err := json.Marshal(integration.Credentials)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode integration credentials: %w", err)
	}
	return string(configJSON), string(credsJSON), nil
}

// requireAffected converts a zero-row update into ErrNotFound.
func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString converts an empty string to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

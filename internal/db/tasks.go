package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = `id, user_id, title, description, due_date, estimated_duration_minutes,
	status, priority, amount, currency, completed_at, created_at, updated_at`

// CreateTask creates a new task.
func (db *DB) CreateTask(task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = TaskOpen
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.Currency == "" {
		task.Currency = "EUR"
	}
	task.CreatedAt = time.Now().UTC()
	task.UpdatedAt = time.Now().UTC()

	query := `INSERT INTO tasks (
		id, user_id, title, description, due_date, estimated_duration_minutes,
		status, priority, amount, currency, completed_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		task.ID, task.UserID, task.Title, task.Description,
		nullTime(task.DueDate), nullInt(task.EstimatedDurationMinutes),
		task.Status, task.Priority, nullFloat(task.Amount), task.Currency,
		nullTime(task.CompletedAt), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetTaskByID returns a task by its ID.
func (db *DB) GetTaskByID(id string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	return scanTask(db.conn.QueryRow(query, id))
}

// GetTaskByIDForUser returns a task owned by the given user.
func (db *DB) GetTaskByIDForUser(id, userID string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`
	return scanTask(db.conn.QueryRow(query, id, userID))
}

// GetTasksByUserID returns all tasks for a user, newest first.
func (db *DB) GetTasksByUserID(userID string) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY created_at DESC`
	return db.queryTasks(query, userID)
}

// GetTasksWithDueDate returns a user's tasks carrying a due date, regardless
// of status. These are the tasks eligible for calendar projection; completed
// tasks keep their events until the retention sweep removes them.
func (db *DB) GetTasksWithDueDate(userID string) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND due_date IS NOT NULL
		ORDER BY due_date`
	return db.queryTasks(query, userID)
}

// UpdateTask updates an existing task.
func (db *DB) UpdateTask(task *Task) error {
	task.UpdatedAt = time.Now().UTC()

	query := `UPDATE tasks SET
		title = ?, description = ?, due_date = ?, estimated_duration_minutes = ?,
		status = ?, priority = ?, amount = ?, currency = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		task.Title, task.Description, nullTime(task.DueDate), nullInt(task.EstimatedDurationMinutes),
		task.Status, task.Priority, nullFloat(task.Amount), task.Currency,
		nullTime(task.CompletedAt), task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return requireAffected(result)
}

// DeleteTask deletes a task. Its projection event, if any, is removed by the
// cascading foreign key.
func (db *DB) DeleteTask(id string) error {
	result, err := db.conn.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireAffected(result)
}

// queryTasks runs a query returning task rows.
func (db *DB) queryTasks(query string, args ...any) ([]*Task, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// scanTask scans a single row into a Task struct.
func scanTask(row *sql.Row) (*Task, error) {
	task, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// scanTaskRow scans one task row from any scanner.
func scanTaskRow(row rowScanner) (*Task, error) {
	task := &Task{}
	var description sql.NullString
	var dueDate, completedAt sql.NullTime
	var duration sql.NullInt64
	var amount sql.NullFloat64

	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &description, &dueDate, &duration,
		&task.Status, &task.Priority, &amount, &task.Currency, &completedAt,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.Description = description.String
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	task.EstimatedDurationMinutes = int(duration.Int64)
	task.Amount = amount.Float64
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}

	return task, nil
}

// nullInt converts a zero int to NULL.
func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// nullFloat converts a zero float to NULL.
func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

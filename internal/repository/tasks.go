package repository

import (
	"context"
	"database/sql"
	"time"
)

type TaskStatus string

const (
	TaskStatusCreated        TaskStatus = "CREATED"
	TaskStatusProcessing     TaskStatus = "PROCESSING"
	TaskStatusFailed         TaskStatus = "FAILED"
	TaskStatusNoAttemptsLeft TaskStatus = "NO_ATTEMPTS_LEFT"
)

// Task is one pending outbox row: an audit event not yet published to Kafka.
type Task struct {
	ID            int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    sql.NullTime
	Payload       []byte
	Status        TaskStatus
	AttemptCount  int
	NextAttemptAt sql.NullTime
}

type Tasks interface {
	CreateTask(ctx context.Context, payload []byte) error
	GetPendingTasks(ctx context.Context, limit int) ([]*Task, error)
	MarkTaskProcessing(ctx context.Context, taskID int) error
	DeleteTask(ctx context.Context, taskID int) error
	UpdateTaskFailure(ctx context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, payload []byte) error {
	query := `
		INSERT INTO tasks (created_at, updated_at, payload, status, attempt_count)
		VALUES (NOW(), NOW(), $1, $2, 0)
	`
	_, err := r.db.ExecContext(ctx, query, payload, TaskStatusCreated)
	return err
}

func (r *TaskRepository) GetPendingTasks(ctx context.Context, limit int) ([]*Task, error) {
	query := `
		SELECT id, created_at, updated_at, finished_at, payload, status, attempt_count, next_attempt_at
		FROM tasks
		WHERE status IN ($1, $2)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		  AND attempt_count < 3
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, TaskStatusCreated, TaskStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.CreatedAt,
			&t.UpdatedAt, &t.FinishedAt,
			&t.Payload, &t.Status,
			&t.AttemptCount, &t.NextAttemptAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) MarkTaskProcessing(ctx context.Context, taskID int) error {
	query := `UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, TaskStatusProcessing, taskID)
	return err
}

func (r *TaskRepository) DeleteTask(ctx context.Context, taskID int) error {
	query := `DELETE FROM tasks WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, taskID)
	return err
}

func (r *TaskRepository) UpdateTaskFailure(ctx context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, attempt_count = $2, updated_at = NOW(), next_attempt_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, newStatus, attemptCount, nextAttemptAt, taskID)
	return err
}

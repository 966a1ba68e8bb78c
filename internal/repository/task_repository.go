package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

const taskColumns = `id, title, description, category, priority, status, created_by, assignee_id, comments,
	ai_summary, version, idempotency_key, created_at, updated_at, resolved_at`

// TaskRepository persists administrative tasks.
type TaskRepository struct {
	db      *sqlx.DB
	changes changePublisher
}

// NewTaskRepository constructs the repository. Writes notify channel when it
// is non-empty.
func NewTaskRepository(db *sqlx.DB, channel string) *TaskRepository {
	return &TaskRepository{db: db, changes: changePublisher{channel: channel}}
}

// Create inserts a task and announces it.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	const query = `INSERT INTO tasks (id, title, description, category, priority, status, created_by, assignee_id, comments,
	ai_summary, version, idempotency_key, created_at, updated_at, resolved_at)
VALUES (:id, :title, :description, :category, :priority, :status, :created_by, :assignee_id, :comments,
	:ai_summary, :version, :idempotency_key, :created_at, :updated_at, :resolved_at)`
	return withTx(ctx, r.db, "create task", func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, task); err != nil {
			return classifyInsert(err, "insert task")
		}
		return r.changes.publish(ctx, tx, taskEvent(task, models.ChangeInsert))
	})
}

// FindByID returns nil when the task does not exist.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := r.db.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// FindByIdempotencyKey returns the task a caller already created with key.
func (r *TaskRepository) FindByIdempotencyKey(ctx context.Context, createdBy, key string) (*models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE created_by = $1 AND idempotency_key = $2`, createdBy, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task by idempotency key: %w", err)
	}
	return &task, nil
}

// List returns tasks ordered by recency.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`)
	var args []interface{}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		fmt.Fprintf(&b, " AND created_by = $%d", len(args))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&b, " AND status IN (%s)", strings.Join(placeholders, ", "))
	}
	b.WriteString(" ORDER BY updated_at DESC, id ASC")
	args = pageClause(&b, args, filter.Limit, filter.Offset)

	tasks := []models.Task{}
	if err := r.db.SelectContext(ctx, &tasks, b.String(), args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateStatus applies a lifecycle transition. resolved_at is only ever set,
// never cleared.
func (r *TaskRepository) UpdateStatus(ctx context.Context, upd models.TaskStatusUpdate) (*models.Task, error) {
	return r.update(ctx, "update task status", conditionalUpdate{
		set:             []string{"status = $1", "resolved_at = COALESCE($2, resolved_at)", "updated_at = $3"},
		args:            []interface{}{upd.Status, upd.ResolvedAt, upd.UpdatedAt},
		id:              upd.ID,
		expectedVersion: upd.ExpectedVersion,
	})
}

// AppendComment adds one comment atomically; concurrent appends never drop
// each other.
func (r *TaskRepository) AppendComment(ctx context.Context, id string, comment models.TaskComment, expectedVersion int) (*models.Task, error) {
	item := models.JSONList[models.TaskComment]{comment}
	return r.update(ctx, "append task comment", conditionalUpdate{
		set:             []string{"comments = COALESCE(comments, '[]'::jsonb) || $1::jsonb", "updated_at = $2"},
		args:            []interface{}{item, comment.CreatedAt},
		id:              id,
		expectedVersion: expectedVersion,
	})
}

// Assign sets or clears the assignee.
func (r *TaskRepository) Assign(ctx context.Context, id string, assigneeID *string, at time.Time, expectedVersion int) (*models.Task, error) {
	return r.update(ctx, "assign task", conditionalUpdate{
		set:             []string{"assignee_id = $1", "updated_at = $2"},
		args:            []interface{}{assigneeID, at},
		id:              id,
		expectedVersion: expectedVersion,
	})
}

// AttachSummary stores a generated summary. The summary is system-owned, so
// the version callers hold stays valid.
func (r *TaskRepository) AttachSummary(ctx context.Context, id, summary string, at time.Time) (*models.Task, error) {
	return r.update(ctx, "attach task summary", conditionalUpdate{
		set:         []string{"ai_summary = $1", "updated_at = $2"},
		args:        []interface{}{summary, at},
		id:          id,
		keepVersion: true,
	})
}

func (r *TaskRepository) update(ctx context.Context, label string, u conditionalUpdate) (*models.Task, error) {
	u.table = "tasks"
	u.columns = taskColumns
	var task models.Task
	var found bool
	err := withTx(ctx, r.db, label, func(tx *sqlx.Tx) error {
		var err error
		found, err = applyUpdate(ctx, tx, u, &task)
		if err != nil || !found {
			return err
		}
		return r.changes.publish(ctx, tx, taskEvent(&task, models.ChangeUpdate))
	})
	if err != nil || !found {
		return nil, err
	}
	return &task, nil
}

func taskEvent(task *models.Task, op models.ChangeOperation) models.ChangeEvent {
	return models.ChangeEvent{Collection: models.CollectionTasks, ID: task.ID, Operation: op, OwnerID: task.CreatedBy}
}

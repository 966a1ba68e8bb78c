package models

import "time"

// TaskPriority ranks administrative tasks.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
)

// TaskStatus captures task lifecycle states.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusResolved   TaskStatus = "RESOLVED"
	TaskStatusEscalated  TaskStatus = "ESCALATED"
)

// TaskComment is append-only; once stored it is never edited.
type TaskComment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Task is an administrative work item.
type Task struct {
	ID             string                `db:"id" json:"id"`
	Title          string                `db:"title" json:"title"`
	Description    string                `db:"description" json:"description"`
	Category       string                `db:"category" json:"category"`
	Priority       TaskPriority          `db:"priority" json:"priority"`
	Status         TaskStatus            `db:"status" json:"status"`
	CreatedBy      string                `db:"created_by" json:"createdBy"`
	AssigneeID     *string               `db:"assignee_id" json:"assigneeId,omitempty"`
	Comments       JSONList[TaskComment] `db:"comments" json:"comments"`
	AISummary      *string               `db:"ai_summary" json:"aiSummary,omitempty"`
	Version        int                   `db:"version" json:"version"`
	IdempotencyKey *string               `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time             `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time             `db:"updated_at" json:"updatedAt"`
	ResolvedAt     *time.Time            `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// TaskFilter constrains listing queries.
type TaskFilter struct {
	CreatedBy string
	Status    []TaskStatus
	Limit     int
	Offset    int
}

// TaskStatusUpdate groups the columns written by a status transition.
type TaskStatusUpdate struct {
	ID              string
	Status          TaskStatus
	ResolvedAt      *time.Time
	UpdatedAt       time.Time
	ExpectedVersion int
}

package dto

import "github.com/noah-isme/campus-ops-api/internal/models"

// CreateTaskRequest is the payload for opening a task.
type CreateTaskRequest struct {
	Title          string              `json:"title" validate:"required,max=200"`
	Description    string              `json:"description" validate:"max=5000"`
	Category       string              `json:"category" validate:"required,max=64"`
	Priority       models.TaskPriority `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	AssigneeID     *string             `json:"assigneeId,omitempty" validate:"omitempty,min=1,max=64"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
}

// UpdateTaskStatusRequest requests a lifecycle transition.
type UpdateTaskStatusRequest struct {
	Status          models.TaskStatus `json:"status" validate:"required,oneof=NEW IN_PROGRESS RESOLVED ESCALATED"`
	ExpectedVersion int               `json:"expectedVersion,omitempty" validate:"gte=0"`
}

// AddTaskCommentRequest appends a comment.
type AddTaskCommentRequest struct {
	Body            string `json:"body" validate:"required,max=4000"`
	ExpectedVersion int    `json:"expectedVersion,omitempty" validate:"gte=0"`
}

// AssignTaskRequest sets or clears (null) the assignee.
type AssignTaskRequest struct {
	AssigneeID      *string `json:"assigneeId" validate:"omitempty,min=1,max=64"`
	ExpectedVersion int     `json:"expectedVersion,omitempty" validate:"gte=0"`
}

// TaskQuery mirrors supported listing filters.
type TaskQuery struct {
	Status []models.TaskStatus `validate:"dive,oneof=NEW IN_PROGRESS RESOLVED ESCALATED"`
	Limit  int                 `validate:"gte=0,lte=200"`
	Offset int                 `validate:"gte=0"`
}

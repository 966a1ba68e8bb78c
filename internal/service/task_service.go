package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/lifecycle"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	"github.com/noah-isme/campus-ops-api/internal/repository"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type taskStore interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindByIdempotencyKey(ctx context.Context, createdBy, key string) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateStatus(ctx context.Context, upd models.TaskStatusUpdate) (*models.Task, error)
	AppendComment(ctx context.Context, id string, comment models.TaskComment, expectedVersion int) (*models.Task, error)
	Assign(ctx context.Context, id string, assigneeID *string, at time.Time, expectedVersion int) (*models.Task, error)
	AttachSummary(ctx context.Context, id, summary string, at time.Time) (*models.Task, error)
}

// TaskService is the mutation boundary for administrative tasks.
type TaskService struct {
	repo    taskStore
	gate    *Gate
	effects sideEffects
	logger  *zap.Logger
	machine lifecycle.TaskMachine
	now     func() time.Time
}

// NewTaskService constructs a TaskService. effects may be nil.
func NewTaskService(repo taskStore, gate *Gate, effects sideEffects, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{repo: repo, gate: gate, effects: effects, logger: logger, machine: lifecycle.Task(), now: time.Now}
}

// CreateTask opens a task owned by actor. A repeated idempotency key returns
// the task created by the first call.
func (s *TaskService) CreateTask(ctx context.Context, actor models.Actor, req dto.CreateTaskRequest) (*models.Task, error) {
	op := Operation{Name: "CreateTask", Permission: models.PermTaskCreate, RateClass: RateTaskWrite}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Task, error) {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return nil, appErrors.InvalidArgument("title", "title must not be blank")
		}
		key := strings.TrimSpace(req.IdempotencyKey)
		if key != "" {
			existing, err := s.repo.FindByIdempotencyKey(ctx, actor.ID, key)
			if err != nil {
				return nil, storageError(err, "failed to look up task")
			}
			if existing != nil {
				return existing, nil
			}
		}

		now := s.now().UTC()
		task := &models.Task{
			ID:          uuid.NewString(),
			Title:       title,
			Description: strings.TrimSpace(req.Description),
			Category:    strings.TrimSpace(req.Category),
			Priority:    req.Priority,
			Status:      models.TaskStatusNew,
			CreatedBy:   actor.ID,
			AssigneeID:  normalizeID(req.AssigneeID),
			Comments:    models.JSONList[models.TaskComment]{},
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if key != "" {
			task.IdempotencyKey = &key
		}
		if err := s.repo.Create(ctx, task); err != nil {
			if key != "" && errors.Is(err, repository.ErrDuplicate) {
				existing, findErr := s.repo.FindByIdempotencyKey(ctx, actor.ID, key)
				if findErr == nil && existing != nil {
					return existing, nil
				}
			}
			return nil, storageError(err, "failed to create task")
		}

		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:     models.AuditActionTaskCreate,
			Performer:  actor,
			EntityType: models.EntityTask,
			EntityID:   task.ID,
			NewValue:   strPtr(string(task.Status)),
			Details: models.AuditDetails{
				"priority": models.StringDetail(string(task.Priority)),
				"category": models.StringDetail(task.Category),
			},
		})
		if task.AssigneeID != nil {
			s.notify(ctx, actor, NotifyTaskAssigned, *task.AssigneeID, task, "You have been assigned "+task.Title)
		}
		if task.Description != "" {
			s.requestSummary(ctx, *task)
		}
		return task, nil
	})
}

// UpdateTaskStatus moves a task along its lifecycle. Leaving RESOLVED is
// permitted and logged as a reopen.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateTaskStatusRequest) (*models.Task, error) {
	op := Operation{Name: "UpdateTaskStatus", Permission: models.PermTaskEdit, RateClass: RateTaskWrite}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Task, error) {
		task, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		if !s.machine.Permits(task.Status, req.Status) {
			return nil, appErrors.FailedPrecondition(lifecycle.Transition(task.Status, req.Status),
				fmt.Sprintf("task cannot move from %s to %s", task.Status, req.Status))
		}
		reopened := lifecycle.IsReopen(task.Status, req.Status)
		if reopened {
			logger.WithContext(ctx, s.logger).Warn("reopening resolved task",
				zap.String("task_id", task.ID),
				zap.String("to", string(req.Status)),
				zap.String(logger.ActorKey, actor.ID))
		}

		now := s.now().UTC()
		upd := models.TaskStatusUpdate{ID: task.ID, Status: req.Status, UpdatedAt: now, ExpectedVersion: req.ExpectedVersion}
		if req.Status == models.TaskStatusResolved {
			upd.ResolvedAt = &now
		}
		updated, err := s.repo.UpdateStatus(ctx, upd)
		if err != nil {
			return nil, storageError(err, "failed to update task status")
		}
		if updated == nil {
			return nil, notFound("task")
		}

		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:        models.AuditActionTaskStatusUpdate,
			Performer:     actor,
			EntityType:    models.EntityTask,
			EntityID:      updated.ID,
			PreviousValue: strPtr(string(task.Status)),
			NewValue:      strPtr(string(updated.Status)),
			Details:       models.AuditDetails{"reopened": models.BoolDetail(reopened)},
		})
		s.notify(ctx, actor, NotifyTaskStatus, updated.CreatedBy, updated,
			fmt.Sprintf("%s moved from %s to %s", updated.Title, task.Status, updated.Status))
		return updated, nil
	})
}

// AddTaskComment appends an immutable comment.
func (s *TaskService) AddTaskComment(ctx context.Context, actor models.Actor, id string, req dto.AddTaskCommentRequest) (*models.Task, error) {
	op := Operation{Name: "AddTaskComment", Permission: models.PermTaskComment, RateClass: RateTaskComment}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Task, error) {
		body := strings.TrimSpace(req.Body)
		if body == "" {
			return nil, appErrors.InvalidArgument("body", "comment must not be blank")
		}
		task, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}

		comment := models.TaskComment{
			ID:         uuid.NewString(),
			AuthorID:   actor.ID,
			AuthorName: actor.Name,
			Body:       body,
			CreatedAt:  s.now().UTC(),
		}
		updated, err := s.repo.AppendComment(ctx, task.ID, comment, req.ExpectedVersion)
		if err != nil {
			return nil, storageError(err, "failed to add comment")
		}
		if updated == nil {
			return nil, notFound("task")
		}

		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:     models.AuditActionTaskCommentAdd,
			Performer:  actor,
			EntityType: models.EntityTask,
			EntityID:   updated.ID,
			Details:    models.AuditDetails{"commentId": models.StringDetail(comment.ID)},
		})
		s.notify(ctx, actor, NotifyTaskComment, updated.CreatedBy, updated, actor.Name+" commented on "+updated.Title)
		s.requestSummary(ctx, *updated)
		return updated, nil
	})
}

// AssignTask sets or clears the assignee.
func (s *TaskService) AssignTask(ctx context.Context, actor models.Actor, id string, req dto.AssignTaskRequest) (*models.Task, error) {
	op := Operation{Name: "AssignTask", Permission: models.PermTaskEdit, RateClass: RateTaskWrite}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Task, error) {
		task, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		assignee := normalizeID(req.AssigneeID)
		updated, err := s.repo.Assign(ctx, task.ID, assignee, s.now().UTC(), req.ExpectedVersion)
		if err != nil {
			return nil, storageError(err, "failed to assign task")
		}
		if updated == nil {
			return nil, notFound("task")
		}

		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:        models.AuditActionTaskAssign,
			Performer:     actor,
			EntityType:    models.EntityTask,
			EntityID:      updated.ID,
			PreviousValue: task.AssigneeID,
			NewValue:      updated.AssigneeID,
		})
		if assignee != nil {
			s.notify(ctx, actor, NotifyTaskAssigned, *assignee, updated, "You have been assigned "+updated.Title)
		}
		return updated, nil
	})
}

// AttachSummary stores a generated summary as the system actor. It is the
// write half of the task.summary side effect.
func (s *TaskService) AttachSummary(ctx context.Context, taskID, summary string) (*models.Task, error) {
	op := Operation{Name: "AttachSummary", Permission: models.PermTaskEdit}
	return run(ctx, s.gate, op, models.SystemActor, nil, func(ctx context.Context) (*models.Task, error) {
		updated, err := s.repo.AttachSummary(ctx, taskID, summary, s.now().UTC())
		if err != nil {
			return nil, storageError(err, "failed to attach summary")
		}
		if updated == nil {
			return nil, notFound("task")
		}
		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:     models.AuditActionTaskSummaryAttach,
			Performer:  models.SystemActor,
			EntityType: models.EntityTask,
			EntityID:   updated.ID,
			Details:    models.AuditDetails{"length": models.IntDetail(len(summary))},
		})
		return updated, nil
	})
}

// ListTasks returns tasks visible to actor, most recently updated first.
func (s *TaskService) ListTasks(ctx context.Context, actor models.Actor, query dto.TaskQuery) ([]models.Task, *models.Pagination, error) {
	op := Operation{Name: "ListTasks", Permission: models.PermTaskView}
	var page *models.Pagination
	tasks, err := run(ctx, s.gate, op, actor, &query, func(ctx context.Context) ([]models.Task, error) {
		filter := models.TaskFilter{
			Status: query.Status,
			Limit:  models.ClampLimit(query.Limit, defaultListLimit, maxListLimit),
			Offset: query.Offset,
		}
		if !rbac.ScopeAll(actor.Role, models.CollectionTasks) {
			filter.CreatedBy = actor.ID
		}
		tasks, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, storageError(err, "failed to list tasks")
		}
		page = &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Count: len(tasks)}
		return tasks, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tasks, page, nil
}

// GetTask returns one task within actor's scope.
func (s *TaskService) GetTask(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	op := Operation{Name: "GetTask", Permission: models.PermTaskView}
	return run(ctx, s.gate, op, actor, nil, func(ctx context.Context) (*models.Task, error) {
		return s.load(ctx, actor, id)
	})
}

// load fetches a task and hides it from callers outside its scope.
func (s *TaskService) load(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.InvalidArgument("id", "task id is required")
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load task")
	}
	if task == nil {
		return nil, notFound("task")
	}
	if !rbac.ScopeAll(actor.Role, models.CollectionTasks) && task.CreatedBy != actor.ID {
		return nil, notFound("task")
	}
	return task, nil
}

func (s *TaskService) notify(ctx context.Context, actor models.Actor, kind, recipient string, task *models.Task, message string) {
	if s.effects == nil || recipient == "" || recipient == actor.ID {
		return
	}
	s.effects.Notify(ctx, Notification{
		Kind:        kind,
		RecipientID: recipient,
		EntityType:  models.EntityTask,
		EntityID:    task.ID,
		Title:       task.Title,
		Message:     message,
	})
}

func (s *TaskService) requestSummary(ctx context.Context, task models.Task) {
	if s.effects != nil {
		s.effects.RequestSummary(ctx, task)
	}
}

func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

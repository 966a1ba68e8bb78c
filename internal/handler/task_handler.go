package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/pkg/response"
)

type taskService interface {
	CreateTask(ctx context.Context, actor models.Actor, req dto.CreateTaskRequest) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateTaskStatusRequest) (*models.Task, error)
	AddTaskComment(ctx context.Context, actor models.Actor, id string, req dto.AddTaskCommentRequest) (*models.Task, error)
	AssignTask(ctx context.Context, actor models.Actor, id string, req dto.AssignTaskRequest) (*models.Task, error)
	ListTasks(ctx context.Context, actor models.Actor, query dto.TaskQuery) ([]models.Task, *models.Pagination, error)
	GetTask(ctx context.Context, actor models.Actor, id string) (*models.Task, error)
}

// TaskHandler exposes administrative task endpoints.
type TaskHandler struct {
	service taskService
}

// NewTaskHandler builds a new handler.
func NewTaskHandler(service taskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// List godoc
// @Summary List tasks visible to the caller
// @Tags Tasks
// @Produce json
// @Param status query []string false "Status filter (repeat or comma separated)"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.TaskQuery{Limit: limit, Offset: offset}
	for _, s := range queryList(c, "status") {
		query.Status = append(query.Status, models.TaskStatus(s))
	}
	tasks, pagination, err := h.service.ListTasks(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, pagination)
}

// Get godoc
// @Summary Get a task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.service.GetTask(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Create godoc
// @Summary Open a task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaskRequest true "Task payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	task, err := h.service.CreateTask(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// UpdateStatus godoc
// @Summary Move a task through its lifecycle
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.UpdateTaskStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /tasks/{id}/status [patch]
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateTaskStatusRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	task, err := h.service.UpdateTaskStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// AddComment godoc
// @Summary Append a comment to a task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.AddTaskCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /tasks/{id}/comments [post]
func (h *TaskHandler) AddComment(c *gin.Context) {
	var req dto.AddTaskCommentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	task, err := h.service.AddTaskComment(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Assign godoc
// @Summary Set or clear the task assignee
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body dto.AssignTaskRequest true "Assignee payload"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id}/assignee [patch]
func (h *TaskHandler) Assign(c *gin.Context) {
	var req dto.AssignTaskRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	task, err := h.service.AssignTask(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

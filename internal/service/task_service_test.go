package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/repository"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
)

type stubTaskRepo struct {
	mu       sync.Mutex
	items    map[string]*models.Task
	byKey    map[string]string
	creates  int
	writes   int
	lastList models.TaskFilter
	block    bool
}

func newStubTaskRepo(tasks ...models.Task) *stubTaskRepo {
	repo := &stubTaskRepo{items: map[string]*models.Task{}, byKey: map[string]string{}}
	for i := range tasks {
		cp := tasks[i]
		repo.items[cp.ID] = &cp
	}
	return repo
}

func (s *stubTaskRepo) Create(ctx context.Context, task *models.Task) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	cp := *task
	s.items[task.ID] = &cp
	if task.IdempotencyKey != nil {
		s.byKey[task.CreatedBy+"/"+*task.IdempotencyKey] = task.ID
	}
	return nil
}

func (s *stubTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.items[id]; ok {
		cp := *task
		return &cp, nil
	}
	return nil, nil
}

func (s *stubTaskRepo) FindByIdempotencyKey(ctx context.Context, createdBy, key string) (*models.Task, error) {
	s.mu.Lock()
	id, ok := s.byKey[createdBy+"/"+key]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.FindByID(ctx, id)
}

func (s *stubTaskRepo) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastList = filter
	out := []models.Task{}
	for _, task := range s.items {
		if filter.CreatedBy == "" || task.CreatedBy == filter.CreatedBy {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (s *stubTaskRepo) mutate(id string, expectedVersion int, fn func(*models.Task)) (*models.Task, error) {
	return s.write(id, expectedVersion, true, fn)
}

func (s *stubTaskRepo) write(id string, expectedVersion int, bump bool, fn func(*models.Task)) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	if expectedVersion > 0 && task.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}
	s.writes++
	fn(task)
	if bump {
		task.Version++
	}
	out := *task
	return &out, nil
}

func (s *stubTaskRepo) UpdateStatus(ctx context.Context, upd models.TaskStatusUpdate) (*models.Task, error) {
	return s.mutate(upd.ID, upd.ExpectedVersion, func(t *models.Task) {
		t.Status = upd.Status
		if upd.ResolvedAt != nil {
			t.ResolvedAt = upd.ResolvedAt
		}
		t.UpdatedAt = upd.UpdatedAt
	})
}

func (s *stubTaskRepo) AppendComment(ctx context.Context, id string, comment models.TaskComment, expectedVersion int) (*models.Task, error) {
	return s.mutate(id, expectedVersion, func(t *models.Task) {
		t.Comments = append(t.Comments, comment)
	})
}

func (s *stubTaskRepo) Assign(ctx context.Context, id string, assigneeID *string, at time.Time, expectedVersion int) (*models.Task, error) {
	return s.mutate(id, expectedVersion, func(t *models.Task) { t.AssigneeID = assigneeID })
}

func (s *stubTaskRepo) AttachSummary(ctx context.Context, id, summary string, at time.Time) (*models.Task, error) {
	return s.write(id, 0, false, func(t *models.Task) { t.AISummary = &summary })
}

type taskFixture struct {
	gateFixture
	repo    *stubTaskRepo
	effects *stubEffects
	svc     *TaskService
	now     time.Time
}

func newTaskFixture(tasks ...models.Task) *taskFixture {
	f := &taskFixture{gateFixture: newGateFixture(nil), repo: newStubTaskRepo(tasks...), effects: &stubEffects{}}
	f.now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	f.svc = NewTaskService(f.repo, f.gate, f.effects, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func existingTask(id, owner string, status models.TaskStatus) models.Task {
	return models.Task{
		ID:        id,
		Title:     "Projector broken in " + id,
		Category:  "facilities",
		Priority:  models.TaskPriorityMedium,
		Status:    status,
		CreatedBy: owner,
		Comments:  models.JSONList[models.TaskComment]{},
		Version:   1,
	}
}

func TestCreateTaskAuditsAndSchedulesSideEffects(t *testing.T) {
	f := newTaskFixture()
	assignee := " dean-1 "

	task, err := f.svc.CreateTask(context.Background(), registrar, dto.CreateTaskRequest{
		Title:       "  Broken projector ",
		Description: "Room 204 projector flickers. Needs a new lamp.",
		Category:    "facilities",
		Priority:    models.TaskPriorityHigh,
		AssigneeID:  &assignee,
	})
	require.NoError(t, err)

	assert.Equal(t, "Broken projector", task.Title)
	assert.Equal(t, models.TaskStatusNew, task.Status)
	assert.Equal(t, "dean-1", *task.AssigneeID)
	assert.Equal(t, 1, f.repo.creates)

	entries := f.audit.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionTaskCreate, entries[0].Action)
	assert.Equal(t, "HIGH", entries[0].Details["priority"].Str)

	assert.Equal(t, []string{task.ID}, f.effects.summaries)
	require.Len(t, f.effects.notifications, 1)
	assert.Equal(t, NotifyTaskAssigned, f.effects.notifications[0].Kind)
	assert.Equal(t, "dean-1", f.effects.notifications[0].RecipientID)
}

func TestCreateTaskValidation(t *testing.T) {
	f := newTaskFixture()

	_, err := f.svc.CreateTask(context.Background(), registrar, dto.CreateTaskRequest{Title: "x", Category: "c", Priority: "URGENT"})
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.CodeInvalidArgument, appErr.Code)
	assert.Equal(t, "priority", appErr.Field)

	_, err = f.svc.CreateTask(context.Background(), registrar, dto.CreateTaskRequest{Title: "   ", Category: "c", Priority: models.TaskPriorityLow})
	assert.Equal(t, "title", appErrors.FromError(err).Field)

	_, err = f.svc.CreateTask(context.Background(), executive, dto.CreateTaskRequest{Title: "x", Category: "c", Priority: models.TaskPriorityLow})
	assert.Equal(t, appErrors.CodePermissionDenied, appErrors.KindOf(err))
	assert.Zero(t, f.repo.creates)
	assert.Empty(t, f.audit.entries())
}

func TestCreateTaskIdempotencyKeyReplays(t *testing.T) {
	f := newTaskFixture()
	req := dto.CreateTaskRequest{Title: "Order chalk", Category: "supplies", Priority: models.TaskPriorityLow, IdempotencyKey: "k-1"}

	first, err := f.svc.CreateTask(context.Background(), registrar, req)
	require.NoError(t, err)
	second, err := f.svc.CreateTask(context.Background(), registrar, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.repo.creates)
	assert.Len(t, f.audit.entries(), 1)
}

func TestCreateTaskTimeout(t *testing.T) {
	f := newTaskFixture()
	f.repo.block = true
	f.gate.config.Timeout = 20 * time.Millisecond

	_, err := f.svc.CreateTask(context.Background(), registrar, dto.CreateTaskRequest{Title: "t", Category: "c", Priority: models.TaskPriorityLow})
	assert.Equal(t, appErrors.CodeTimeout, appErrors.KindOf(err))
	assert.Empty(t, f.audit.entries())
}

func TestUpdateTaskStatusFollowsLifecycle(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))

	_, err := f.svc.UpdateTaskStatus(context.Background(), dean, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusResolved})
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.CodeFailedPrecondition, appErr.Code)
	assert.Equal(t, "NEW->RESOLVED", appErr.Transition)
	assert.Empty(t, f.audit.entries())

	task, err := f.svc.UpdateTaskStatus(context.Background(), dean, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusInProgress})
	require.NoError(t, err)
	assert.Nil(t, task.ResolvedAt)

	task, err = f.svc.UpdateTaskStatus(context.Background(), dean, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusResolved})
	require.NoError(t, err)
	require.NotNil(t, task.ResolvedAt)
	assert.Equal(t, f.now, *task.ResolvedAt)

	entries := f.audit.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "IN_PROGRESS", *entries[1].PreviousValue)
	assert.Equal(t, "RESOLVED", *entries[1].NewValue)
	require.Len(t, f.effects.notifications, 2)
	assert.Equal(t, registrar.ID, f.effects.notifications[0].RecipientID)
}

func TestUpdateTaskStatusSameStatusIsRejected(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))

	_, err := f.svc.UpdateTaskStatus(context.Background(), dean, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusNew})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.CodeFailedPrecondition, appErr.Code)
	assert.Equal(t, "NEW->NEW", appErr.Transition)
	assert.Zero(t, f.repo.writes)
	assert.Empty(t, f.audit.entries())
}

func TestUpdateTaskStatusRequiresEdit(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))

	_, err := f.svc.UpdateTaskStatus(context.Background(), registrar, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusInProgress})
	assert.Equal(t, appErrors.CodePermissionDenied, appErrors.KindOf(err))
	assert.Zero(t, f.repo.writes)
}

// Leaving RESOLVED is not in the transition table but the boundary lets it
// through and flags it in the audit entry.
func TestUpdateTaskStatusReopenIsPermitted(t *testing.T) {
	resolvedAt := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	resolved := existingTask("T1", registrar.ID, models.TaskStatusResolved)
	resolved.ResolvedAt = &resolvedAt
	f := newTaskFixture(resolved)

	task, err := f.svc.UpdateTaskStatus(context.Background(), director, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusInProgress})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusInProgress, task.Status)
	require.NotNil(t, task.ResolvedAt)
	assert.Equal(t, resolvedAt, *task.ResolvedAt)
	entries := f.audit.entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Details["reopened"].Bool)
}

func TestUpdateTaskStatusVersionConflict(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))

	_, err := f.svc.UpdateTaskStatus(context.Background(), dean, "T1", dto.UpdateTaskStatusRequest{Status: models.TaskStatusEscalated, ExpectedVersion: 3})
	assert.Equal(t, appErrors.CodeConflict, appErrors.KindOf(err))
	assert.Empty(t, f.audit.entries())
}

func TestAddTaskComment(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew), existingTask("T2", "other", models.TaskStatusNew))

	_, err := f.svc.AddTaskComment(context.Background(), registrar, "T1", dto.AddTaskCommentRequest{Body: "  \n "})
	assert.Equal(t, "body", appErrors.FromError(err).Field)

	_, err = f.svc.AddTaskComment(context.Background(), registrar, "T2", dto.AddTaskCommentRequest{Body: "hello"})
	assert.Equal(t, appErrors.CodeNotFound, appErrors.KindOf(err))

	task, err := f.svc.AddTaskComment(context.Background(), registrar, "T1", dto.AddTaskCommentRequest{Body: "Lamp ordered."})
	require.NoError(t, err)
	require.Len(t, task.Comments, 1)
	comment := task.Comments[0]
	assert.Equal(t, registrar.ID, comment.AuthorID)
	assert.Equal(t, registrar.Name, comment.AuthorName)
	assert.Equal(t, "Lamp ordered.", comment.Body)

	entries := f.audit.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, comment.ID, entries[0].Details["commentId"].Str)
	assert.Equal(t, []string{"T1"}, f.effects.summaries)
	assert.Empty(t, f.effects.notifications, "no self notification")
}

func TestAssignTask(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))
	assignee := "staff-7"

	task, err := f.svc.AssignTask(context.Background(), dean, "T1", dto.AssignTaskRequest{AssigneeID: &assignee})
	require.NoError(t, err)
	assert.Equal(t, "staff-7", *task.AssigneeID)

	task, err = f.svc.AssignTask(context.Background(), dean, "T1", dto.AssignTaskRequest{})
	require.NoError(t, err)
	assert.Nil(t, task.AssigneeID)

	entries := f.audit.entries()
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].PreviousValue)
	assert.Equal(t, "staff-7", *entries[0].NewValue)
	assert.Equal(t, "staff-7", *entries[1].PreviousValue)
	assert.Nil(t, entries[1].NewValue)
}

func TestAttachSummaryRunsAsSystem(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))

	task, err := f.svc.AttachSummary(context.Background(), "T1", "Projector needs a lamp.")
	require.NoError(t, err)
	assert.Equal(t, "Projector needs a lamp.", *task.AISummary)

	entries := f.audit.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.SystemActor.ID, entries[0].Performer.ID)
	assert.Equal(t, int64(len("Projector needs a lamp.")), entries[0].Details["length"].Int)
}

func TestAttachSummaryKeepsCallerVersionValid(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew))

	summarized, err := f.svc.AttachSummary(context.Background(), "T1", "Projector needs a lamp.")
	require.NoError(t, err)
	assert.Equal(t, 1, summarized.Version)

	task, err := f.svc.UpdateTaskStatus(context.Background(), dean, "T1",
		dto.UpdateTaskStatusRequest{Status: models.TaskStatusInProgress, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, task.Version)
}

func TestListAndGetTaskScope(t *testing.T) {
	f := newTaskFixture(existingTask("T1", registrar.ID, models.TaskStatusNew), existingTask("T2", dean.ID, models.TaskStatusNew))

	tasks, page, err := f.svc.ListTasks(context.Background(), registrar, dto.TaskQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, registrar.ID, f.repo.lastList.CreatedBy)
	assert.Equal(t, 10, page.Limit)

	tasks, _, err = f.svc.ListTasks(context.Background(), executive, dto.TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = f.svc.GetTask(context.Background(), registrar, "T2")
	assert.Equal(t, appErrors.CodeNotFound, appErrors.KindOf(err))

	task, err := f.svc.GetTask(context.Background(), executive, "T2")
	require.NoError(t, err)
	assert.Equal(t, "T2", task.ID)
}

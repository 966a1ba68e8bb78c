package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/middleware"
	"github.com/noah-isme/campus-ops-api/internal/models"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/export"
)

var deanClaims = &models.JWTClaims{UserID: "dean-1", FullName: "Dana Dean", Role: models.RoleDean}

func newContext(method, target string, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) appErrors.Error {
	t.Helper()
	var env struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error
}

type taskServiceMock struct {
	actor     models.Actor
	id        string
	create    dto.CreateTaskRequest
	status    dto.UpdateTaskStatusRequest
	query     dto.TaskQuery
	resp      *models.Task
	err       error
	listCalls int
}

func (m *taskServiceMock) CreateTask(ctx context.Context, actor models.Actor, req dto.CreateTaskRequest) (*models.Task, error) {
	m.actor, m.create = actor, req
	return m.resp, m.err
}

func (m *taskServiceMock) UpdateTaskStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateTaskStatusRequest) (*models.Task, error) {
	m.actor, m.id, m.status = actor, id, req
	return m.resp, m.err
}

func (m *taskServiceMock) AddTaskComment(ctx context.Context, actor models.Actor, id string, req dto.AddTaskCommentRequest) (*models.Task, error) {
	m.actor, m.id = actor, id
	return m.resp, m.err
}

func (m *taskServiceMock) AssignTask(ctx context.Context, actor models.Actor, id string, req dto.AssignTaskRequest) (*models.Task, error) {
	m.actor, m.id = actor, id
	return m.resp, m.err
}

func (m *taskServiceMock) ListTasks(ctx context.Context, actor models.Actor, query dto.TaskQuery) ([]models.Task, *models.Pagination, error) {
	m.listCalls++
	m.actor, m.query = actor, query
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.Task{{ID: "T1"}}, &models.Pagination{Limit: query.Limit, Offset: query.Offset, Count: 1}, nil
}

func (m *taskServiceMock) GetTask(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	m.actor, m.id = actor, id
	return m.resp, m.err
}

func TestTaskHandlerCreatePassesActor(t *testing.T) {
	svc := &taskServiceMock{resp: &models.Task{ID: "T1", Title: "Projector"}}
	c, w := newContext(http.MethodPost, "/tasks", `{"title":"Projector","category":"it","priority":"HIGH"}`, deanClaims)

	NewTaskHandler(svc).Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "dean-1", svc.actor.ID)
	assert.Equal(t, models.TaskPriority("HIGH"), svc.create.Priority)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestTaskHandlerMalformedBody(t *testing.T) {
	c, w := newContext(http.MethodPost, "/tasks", `{"title":`, deanClaims)
	NewTaskHandler(&taskServiceMock{}).Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.CodeInvalidArgument, decodeError(t, w).Code)
}

func TestTaskHandlerWrongFieldType(t *testing.T) {
	c, w := newContext(http.MethodPatch, "/tasks/T1/status", `{"status":"RESOLVED","expectedVersion":"two"}`, deanClaims)
	NewTaskHandler(&taskServiceMock{}).UpdateStatus(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "expectedVersion", decodeError(t, w).Field)
}

func TestTaskHandlerStatusPreconditionCarriesTransition(t *testing.T) {
	svc := &taskServiceMock{err: appErrors.FailedPrecondition("NEW->ESCALATED", "transition not allowed")}
	c, w := newContext(http.MethodPatch, "/tasks/T1/status", `{"status":"ESCALATED"}`, deanClaims)
	c.Params = gin.Params{{Key: "id", Value: "T1"}}

	NewTaskHandler(svc).UpdateStatus(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "T1", svc.id)
	assert.Equal(t, "NEW->ESCALATED", decodeError(t, w).Transition)
}

func TestTaskHandlerListParsesFilters(t *testing.T) {
	svc := &taskServiceMock{}
	c, w := newContext(http.MethodGet, "/tasks?status=new,in_progress&status=ESCALATED&limit=10&offset=20", "", deanClaims)

	NewTaskHandler(svc).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.TaskStatus{"NEW", "IN_PROGRESS", "ESCALATED"}, svc.query.Status)
	assert.Equal(t, 10, svc.query.Limit)
	assert.Equal(t, 20, svc.query.Offset)
}

func TestTaskHandlerListRejectsBadLimit(t *testing.T) {
	svc := &taskServiceMock{}
	c, w := newContext(http.MethodGet, "/tasks?limit=ten", "", deanClaims)

	NewTaskHandler(svc).List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "limit", decodeError(t, w).Field)
	assert.Zero(t, svc.listCalls)
}

func TestTaskHandlerRateLimitedSetsRetryAfter(t *testing.T) {
	svc := &taskServiceMock{err: appErrors.RateLimited("task:write", 42*time.Second)}
	c, w := newContext(http.MethodPost, "/tasks/T1/comments", `{"body":"on it"}`, deanClaims)

	NewTaskHandler(svc).AddComment(c)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
}

func TestTaskHandlerMissingIdentityPassesZeroActor(t *testing.T) {
	svc := &taskServiceMock{err: appErrors.ErrUnauthorized}
	c, w := newContext(http.MethodGet, "/tasks/T1", "", nil)

	NewTaskHandler(svc).Get(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.actor.ID)
}

type examServiceMock struct {
	id       string
	version  int
	query    dto.ExamQuery
	publish  dto.PublishExamResultsRequest
	resp     *models.Exam
	preview  *dto.ConflictPreviewResponse
	err      error
	deleted  bool
	previews int
}

func (m *examServiceMock) CreateExam(ctx context.Context, actor models.Actor, req dto.CreateExamRequest) (*models.Exam, error) {
	return m.resp, m.err
}

func (m *examServiceMock) UpdateExam(ctx context.Context, actor models.Actor, id string, req dto.UpdateExamRequest) (*models.Exam, error) {
	m.id = id
	return m.resp, m.err
}

func (m *examServiceMock) DeleteExam(ctx context.Context, actor models.Actor, id string, expectedVersion int) error {
	m.id, m.version = id, expectedVersion
	m.deleted = m.err == nil
	return m.err
}

func (m *examServiceMock) PublishExamResults(ctx context.Context, actor models.Actor, id string, req dto.PublishExamResultsRequest) (*models.Exam, error) {
	m.id, m.publish = id, req
	return m.resp, m.err
}

func (m *examServiceMock) ListExams(ctx context.Context, actor models.Actor, query dto.ExamQuery) ([]models.Exam, *models.Pagination, error) {
	m.query = query
	return nil, &models.Pagination{Limit: query.Limit}, m.err
}

func (m *examServiceMock) GetExam(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	m.id = id
	return m.resp, m.err
}

func (m *examServiceMock) PreviewExamConflicts(ctx context.Context, actor models.Actor, req dto.ConflictPreviewRequest) (*dto.ConflictPreviewResponse, error) {
	m.previews++
	return m.preview, m.err
}

func TestExamHandlerCreateReportsConflictsInMeta(t *testing.T) {
	svc := &examServiceMock{resp: &models.Exam{ID: "E1", Conflicts: models.JSONList[models.ConflictRecord]{
		{Type: models.ConflictTypeRoom, Severity: models.SeverityError, ConflictingID: "E0"},
		{Type: models.ConflictTypeCapacity, Severity: models.SeverityWarning},
	}}}
	c, w := newContext(http.MethodPost, "/exams", `{"title":"Calculus"}`, deanClaims)

	NewExamHandler(svc).Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var env struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, float64(2), env.Meta["conflictCount"])
	assert.Equal(t, true, env.Meta["hasErrors"])
}

func TestExamHandlerDeleteReadsVersionQuery(t *testing.T) {
	svc := &examServiceMock{}
	c, w := newContext(http.MethodDelete, "/exams/E1?expectedVersion=3", "", deanClaims)
	c.Params = gin.Params{{Key: "id", Value: "E1"}}

	NewExamHandler(svc).Delete(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.deleted)
	assert.Equal(t, 3, svc.version)
}

func TestExamHandlerDeleteVersionConflict(t *testing.T) {
	svc := &examServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "exam was modified")}
	c, w := newContext(http.MethodDelete, "/exams/E1?expectedVersion=1", "", deanClaims)

	NewExamHandler(svc).Delete(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExamHandlerPublishWithoutBody(t *testing.T) {
	svc := &examServiceMock{resp: &models.Exam{ID: "E1", ResultsPublished: true}}
	c, w := newContext(http.MethodPost, "/exams/E1/publish", "", deanClaims)
	c.Params = gin.Params{{Key: "id", Value: "E1"}}

	NewExamHandler(svc).Publish(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E1", svc.id)
	assert.Zero(t, svc.publish.ExpectedVersion)
}

func TestExamHandlerListParsesDate(t *testing.T) {
	svc := &examServiceMock{}
	c, w := newContext(http.MethodGet, "/exams?date=2026-11-02&status=scheduled", "", deanClaims)

	NewExamHandler(svc).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-11-02", svc.query.ScheduledDate)
	assert.Equal(t, []models.ExamStatus{models.ExamStatusScheduled}, svc.query.Status)
}

func TestExamHandlerPreviewPermissionDenied(t *testing.T) {
	svc := &examServiceMock{err: appErrors.PermissionDenied("EXECUTIVE", "exam:view")}
	c, w := newContext(http.MethodPost, "/exams/conflicts/preview", `{"scheduledDate":"2026-11-02"}`, deanClaims)

	NewExamHandler(svc).PreviewConflicts(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, svc.previews)
}

type auditServiceMock struct {
	query  dto.AuditQuery
	format export.Format
	err    error
}

func (m *auditServiceMock) FetchRecent(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditLogEntry, error) {
	m.query = query
	return []models.AuditLogEntry{{ID: "a1"}}, m.err
}

func (m *auditServiceMock) Export(ctx context.Context, actor models.Actor, query dto.AuditQuery, format export.Format) (*dto.AuditExport, error) {
	m.query, m.format = query, format
	if m.err != nil {
		return nil, m.err
	}
	return &dto.AuditExport{Filename: "audit-log-20261019-120000.pdf", ContentType: format.ContentType(), Body: []byte("%PDF"), Rows: 1}, nil
}

func TestAuditHandlerList(t *testing.T) {
	svc := &auditServiceMock{}
	c, w := newContext(http.MethodGet, "/audit-logs?entityId=E1&limit=5", "", deanClaims)

	NewAuditHandler(svc).List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.AuditQuery{EntityID: "E1", Limit: 5}, svc.query)
}

func TestAuditHandlerExportPDF(t *testing.T) {
	svc := &auditServiceMock{}
	c, w := newContext(http.MethodGet, "/audit-logs/export?format=PDF", "", deanClaims)

	NewAuditHandler(svc).Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatPDF, svc.format)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-log-20261019-120000.pdf")
}

func TestAuditHandlerExportUnknownFormat(t *testing.T) {
	c, w := newContext(http.MethodGet, "/audit-logs/export?format=xlsx", "", deanClaims)

	NewAuditHandler(&auditServiceMock{}).Export(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "format", decodeError(t, w).Field)
}

func TestReadyReportsFailingChecks(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	c, w := newContext(http.MethodGet, "/ready", "", nil)

	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
	assert.NotContains(t, w.Body.String(), "postgres")
}

func TestPrometheusWithoutMetricsIsUnavailable(t *testing.T) {
	c, w := newContext(http.MethodGet, "/metrics", "", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

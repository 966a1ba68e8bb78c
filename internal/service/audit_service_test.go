package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/models"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/export"
)

type stubAuditRepo struct {
	inserted  []models.AuditLogEntry
	insertErr error
	listed    []models.AuditLogEntry
	filter    models.AuditFilter
}

func (s *stubAuditRepo) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, *entry)
	return nil
}

func (s *stubAuditRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	s.filter = filter
	return s.listed, nil
}

func TestAuditRecordInsertsOnce(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := NewAuditService(repo, 0, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600)) }

	entry, err := svc.Record(context.Background(), models.AuditLogEntryDraft{
		Action:     models.AuditActionTaskStatusUpdate,
		Performer:  dean,
		EntityType: models.EntityTask,
		EntityID:   "T1",
		Details:    models.AuditDetails{"reopened": models.BoolDetail(false)},
	})
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, dean.Role, entry.PerformerRole)
	assert.Equal(t, time.UTC, entry.CreatedAt.Location())
}

func TestAuditRecordRejectsMalformedDrafts(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := NewAuditService(repo, 0, nil)
	base := models.AuditLogEntryDraft{Action: models.AuditActionExamCreate, Performer: dean, EntityType: models.EntityExam, EntityID: "E1"}

	cases := map[string]func(d *models.AuditLogEntryDraft){
		"action":     func(d *models.AuditLogEntryDraft) { d.Action = "EXAM_EXPLODE" },
		"performer":  func(d *models.AuditLogEntryDraft) { d.Performer = models.Actor{} },
		"entityType": func(d *models.AuditLogEntryDraft) { d.EntityType = "" },
		"entityId":   func(d *models.AuditLogEntryDraft) { d.EntityID = "" },
		"details": func(d *models.AuditLogEntryDraft) {
			d.Details = models.AuditDetails{"conflictCount": models.StringDetail("2")}
		},
	}
	for field, mutate := range cases {
		draft := base
		mutate(&draft)
		_, err := svc.Record(context.Background(), draft)
		appErr := appErrors.FromError(err)
		require.NotNil(t, appErr, field)
		assert.Equal(t, appErrors.CodeInvalidArgument, appErr.Code, field)
		assert.Equal(t, field, appErr.Field)
	}
	assert.Empty(t, repo.inserted)
}

func TestAuditRecordStorageFailure(t *testing.T) {
	svc := NewAuditService(&stubAuditRepo{insertErr: errors.New("conn reset")}, 0, nil)
	_, err := svc.Record(context.Background(), models.AuditLogEntryDraft{
		Action: models.AuditActionExamPublish, Performer: dean, EntityType: models.EntityExam, EntityID: "E1",
	})
	assert.Equal(t, appErrors.CodeStorageUnavailable, appErrors.KindOf(err))
}

func TestFetchRecentPermissionAndLimits(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := NewAuditService(repo, 25, nil)

	_, err := svc.FetchRecent(context.Background(), registrar, dto.AuditQuery{})
	assert.Equal(t, appErrors.CodePermissionDenied, appErrors.KindOf(err))

	_, err = svc.FetchRecent(context.Background(), models.Actor{Role: models.RoleDirector}, dto.AuditQuery{})
	assert.Equal(t, appErrors.CodeUnauthorized, appErrors.KindOf(err))

	_, err = svc.FetchRecent(context.Background(), executive, dto.AuditQuery{EntityID: " E1 "})
	require.NoError(t, err)
	assert.Equal(t, models.AuditFilter{EntityID: "E1", Limit: 25}, repo.filter)

	_, err = svc.FetchRecent(context.Background(), executive, dto.AuditQuery{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, maxAuditLimit, repo.filter.Limit)

	_, err = svc.FetchRecent(context.Background(), executive, dto.AuditQuery{Limit: -1})
	assert.Equal(t, appErrors.CodeInvalidArgument, appErrors.KindOf(err))
}

func TestAuditExportCSV(t *testing.T) {
	prev := "NEW"
	next := "IN_PROGRESS"
	repo := &stubAuditRepo{listed: []models.AuditLogEntry{{
		ID:            "a1",
		Action:        models.AuditActionTaskStatusUpdate,
		PerformerName: "Dana Dean",
		PerformerRole: models.RoleDean,
		EntityType:    models.EntityTask,
		EntityID:      "T1",
		PreviousValue: &prev,
		NewValue:      &next,
		CreatedAt:     time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}}}
	svc := NewAuditService(repo, 0, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	out, err := svc.Export(context.Background(), director, dto.AuditQuery{}, export.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Rows)
	assert.Equal(t, "audit-log-20261019-120000.csv", out.Filename)
	body := string(out.Body)
	assert.True(t, strings.HasPrefix(body, "Time,Action,Performer,Role,Entity,Previous,New\n"))
	assert.Contains(t, body, "TASK_STATUS_UPDATE,Dana Dean,DEAN,task/T1,NEW,IN_PROGRESS")
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/export"
)

const maxAuditLimit = 200

type auditStore interface {
	Insert(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
}

// AuditService is the append-only audit recorder.
type AuditService struct {
	repo         auditStore
	logger       *zap.Logger
	defaultLimit int
	now          func() time.Time
}

// NewAuditService constructs the recorder.
func NewAuditService(repo auditStore, defaultLimit int, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &AuditService{repo: repo, logger: logger, defaultLimit: defaultLimit, now: time.Now}
}

// Record validates draft and performs exactly one insert.
func (s *AuditService) Record(ctx context.Context, draft models.AuditLogEntryDraft) (*models.AuditLogEntry, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	entry := &models.AuditLogEntry{
		ID:            uuid.NewString(),
		Action:        draft.Action,
		PerformerID:   draft.Performer.ID,
		PerformerName: draft.Performer.Name,
		PerformerRole: draft.Performer.Role,
		EntityType:    draft.EntityType,
		EntityID:      draft.EntityID,
		PreviousValue: draft.PreviousValue,
		NewValue:      draft.NewValue,
		Details:       draft.Details,
		CreatedAt:     s.now().UTC(),
	}
	if entry.Details == nil {
		entry.Details = models.AuditDetails{}
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, appErrors.FromStorage(err, "failed to append audit log")
	}
	return entry, nil
}

func validateDraft(draft models.AuditLogEntryDraft) error {
	if !models.KnownAuditAction(draft.Action) {
		return appErrors.InvalidArgument("action", fmt.Sprintf("unknown audit action %q", draft.Action))
	}
	if draft.Performer.ID == "" {
		return appErrors.InvalidArgument("performer", "performer id is required")
	}
	if draft.EntityType == "" {
		return appErrors.InvalidArgument("entityType", "entity type is required")
	}
	if draft.EntityID == "" {
		return appErrors.InvalidArgument("entityId", "entity id is required")
	}
	if err := draft.Details.Validate(draft.Action); err != nil {
		return appErrors.InvalidArgument("details", err.Error())
	}
	return nil
}

// FetchRecent returns history newest first. It requires audit:view.
func (s *AuditService) FetchRecent(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditLogEntry, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if !rbac.Allows(actor.Role, models.PermAuditView) {
		return nil, appErrors.PermissionDenied(string(actor.Role), string(models.PermAuditView))
	}
	if query.Limit < 0 {
		return nil, appErrors.InvalidArgument("limit", "limit must not be negative")
	}
	entries, err := s.repo.List(ctx, models.AuditFilter{
		EntityID: strings.TrimSpace(query.EntityID),
		Limit:    models.ClampLimit(query.Limit, s.defaultLimit, maxAuditLimit),
	})
	if err != nil {
		return nil, appErrors.FromStorage(err, "failed to load audit logs")
	}
	return entries, nil
}

// Export renders recent history as CSV or PDF.
func (s *AuditService) Export(ctx context.Context, actor models.Actor, query dto.AuditQuery, format export.Format) (*dto.AuditExport, error) {
	entries, err := s.FetchRecent(ctx, actor, query)
	if err != nil {
		return nil, err
	}
	table := export.Table{
		Title: "Audit log",
		Columns: []export.Column{
			{Header: "Time", Weight: 1.6},
			{Header: "Action", Weight: 1.8},
			{Header: "Performer", Weight: 1.6},
			{Header: "Role"},
			{Header: "Entity", Weight: 1.6},
			{Header: "Previous"},
			{Header: "New"},
		},
		Rows: make([][]string, 0, len(entries)),
	}
	if query.EntityID != "" {
		table.Title = "Audit log for " + query.EntityID
	}
	for _, e := range entries {
		table.Rows = append(table.Rows, []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Action),
			e.PerformerName,
			string(e.PerformerRole),
			e.EntityType + "/" + e.EntityID,
			deref(e.PreviousValue),
			deref(e.NewValue),
		})
	}
	body, err := export.For(format).Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	s.logger.Info("audit log exported", zap.String("actor_id", actor.ID), zap.String("format", string(format)), zap.Int("rows", len(entries)))
	return &dto.AuditExport{
		Filename:    export.Filename("audit-log", s.now().UTC().Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Body:        body,
		Rows:        len(entries),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

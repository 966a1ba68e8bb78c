package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/conflict"
	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/lifecycle"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	"github.com/noah-isme/campus-ops-api/internal/repository"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/logger"
)

type examStore interface {
	Create(ctx context.Context, exam *models.Exam) error
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	FindByIdempotencyKey(ctx context.Context, createdBy, key string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error)
	ListByDate(ctx context.Context, date string) ([]models.Exam, error)
	Update(ctx context.Context, upd models.ExamUpdate) (*models.Exam, error)
	PublishResults(ctx context.Context, id string, at time.Time, expectedVersion int) (*models.Exam, error)
	Delete(ctx context.Context, exam *models.Exam, expectedVersion int) (bool, error)
}

// ConflictDetector runs the overlap scan. The default is conflict.DetectConflicts.
type ConflictDetector func(candidate conflict.ScheduleFields, existing []models.Exam) []models.ConflictRecord

// ExamService is the mutation boundary for exams.
type ExamService struct {
	repo    examStore
	gate    *Gate
	effects sideEffects
	detect  ConflictDetector
	logger  *zap.Logger
	machine lifecycle.ExamMachine
	now     func() time.Time
}

// NewExamService constructs an ExamService. effects and detect may be nil.
func NewExamService(repo examStore, gate *Gate, effects sideEffects, detect ConflictDetector, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detect == nil {
		detect = conflict.DetectConflicts
	}
	return &ExamService{
		repo:    repo,
		gate:    gate,
		effects: effects,
		detect:  detect,
		logger:  logger,
		machine: lifecycle.Exam(),
		now:     time.Now,
	}
}

// CreateExam schedules an exam. Detected conflicts are attached to the exam
// and never block the write.
func (s *ExamService) CreateExam(ctx context.Context, actor models.Actor, req dto.CreateExamRequest) (*models.Exam, error) {
	op := Operation{Name: "CreateExam", Permission: models.PermExamCreate, RateClass: RateExamWrite}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Exam, error) {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return nil, appErrors.InvalidArgument("title", "title must not be blank")
		}
		if err := validateSchedule(req.ScheduledDate, req.StartTime, req.EndTime); err != nil {
			return nil, err
		}
		status := req.Status
		if status == "" {
			status = models.ExamStatusDraft
		}

		key := strings.TrimSpace(req.IdempotencyKey)
		if key != "" {
			existing, err := s.repo.FindByIdempotencyKey(ctx, actor.ID, key)
			if err != nil {
				return nil, storageError(err, "failed to look up exam")
			}
			if existing != nil {
				return existing, nil
			}
		}

		now := s.now().UTC()
		exam := &models.Exam{
			ID:               uuid.NewString(),
			Title:            title,
			CourseCode:       strings.TrimSpace(req.CourseCode),
			CourseName:       strings.TrimSpace(req.CourseName),
			ExamType:         req.ExamType,
			Status:           status,
			ScheduledDate:    req.ScheduledDate,
			StartTime:        req.StartTime,
			EndTime:          req.EndTime,
			Duration:         durationOrSpan(req.Duration, req.StartTime, req.EndTime),
			Room:             strings.TrimSpace(req.Room),
			Building:         strings.TrimSpace(req.Building),
			Capacity:         req.Capacity,
			EnrolledStudents: normalizeStudents(req.EnrolledStudents),
			CreatedBy:        actor.ID,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if key != "" {
			exam.IdempotencyKey = &key
		}

		conflicts, err := s.conflictsFor(ctx, conflict.FieldsOf(*exam), exam.Capacity)
		if err != nil {
			return nil, err
		}
		exam.Conflicts = conflicts

		if err := s.repo.Create(ctx, exam); err != nil {
			if key != "" && errors.Is(err, repository.ErrDuplicate) {
				existing, findErr := s.repo.FindByIdempotencyKey(ctx, actor.ID, key)
				if findErr == nil && existing != nil {
					return existing, nil
				}
			}
			return nil, storageError(err, "failed to create exam")
		}

		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:     models.AuditActionExamCreate,
			Performer:  actor,
			EntityType: models.EntityExam,
			EntityID:   exam.ID,
			NewValue:   strPtr(string(exam.Status)),
			Details: models.AuditDetails{
				"conflictCount": models.IntDetail(len(exam.Conflicts)),
				"enrolled":      models.IntDetail(len(exam.EnrolledStudents)),
				"status":        models.StringDetail(string(exam.Status)),
			},
		})
		return exam, nil
	})
}

// UpdateExam patches metadata, schedule fields and/or status. Conflicts are
// recomputed whenever schedule fields or enrollment change.
func (s *ExamService) UpdateExam(ctx context.Context, actor models.Actor, id string, req dto.UpdateExamRequest) (*models.Exam, error) {
	op := Operation{Name: "UpdateExam", Permission: models.PermExamEdit, RateClass: RateExamWrite}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Exam, error) {
		if req.Empty() {
			return nil, appErrors.InvalidArgument("", "at least one field must be provided")
		}
		if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
			return nil, appErrors.InvalidArgument("title", "title must not be blank")
		}
		current, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}

		next, patch := applyExamPatch(*current, req)
		if patch.schedule {
			if err := validateSchedule(next.ScheduledDate, next.StartTime, next.EndTime); err != nil {
				return nil, err
			}
			if s.machine.IsTerminal(current.Status) {
				return nil, appErrors.FailedPrecondition("",
					fmt.Sprintf("schedule of a %s exam cannot change", current.Status))
			}
		}
		statusChanged := next.Status != current.Status
		if statusChanged && !s.machine.CanTransition(current.Status, next.Status) {
			return nil, appErrors.FailedPrecondition(lifecycle.Transition(current.Status, next.Status),
				fmt.Sprintf("exam cannot move from %s to %s", current.Status, next.Status))
		}
		if len(patch.fields) == 0 {
			return current, nil
		}

		columns := append([]string(nil), patch.fields...)
		if patch.schedule {
			conflicts, err := s.conflictsFor(ctx, conflict.FieldsOf(next), next.Capacity)
			if err != nil {
				return nil, err
			}
			next.Conflicts = conflicts
			columns = append(columns, "conflicts")
		}
		next.UpdatedAt = s.now().UTC()

		updated, err := s.repo.Update(ctx, models.ExamUpdate{
			Exam:            &next,
			Fields:          columns,
			FromStatus:      current.Status,
			ExpectedVersion: req.ExpectedVersion,
		})
		if err != nil {
			return nil, storageError(err, "failed to update exam")
		}
		if updated == nil {
			return nil, notFound("exam")
		}

		draft := models.AuditLogEntryDraft{
			Action:     models.AuditActionExamUpdate,
			Performer:  actor,
			EntityType: models.EntityExam,
			EntityID:   updated.ID,
			Details: models.AuditDetails{
				"conflictCount": models.IntDetail(len(updated.Conflicts)),
				"fields":        models.ListDetail(patch.fields),
			},
		}
		if statusChanged {
			draft.PreviousValue = strPtr(string(current.Status))
			draft.NewValue = strPtr(string(updated.Status))
		}
		s.gate.recordAudit(ctx, draft)

		if statusChanged {
			switch updated.Status {
			case models.ExamStatusScheduled:
				s.notify(ctx, actor, NotifyExamScheduled, updated, fmt.Sprintf("%s is scheduled for %s %s", updated.Title, updated.ScheduledDate, updated.StartTime))
			case models.ExamStatusCancelled:
				s.notify(ctx, actor, NotifyExamCancelled, updated, updated.Title+" was cancelled")
			}
		}
		return updated, nil
	})
}

// DeleteExam removes a DRAFT exam.
func (s *ExamService) DeleteExam(ctx context.Context, actor models.Actor, id string, expectedVersion int) error {
	op := Operation{Name: "DeleteExam", Permission: models.PermExamDelete, RateClass: RateExamWrite}
	_, err := run(ctx, s.gate, op, actor, nil, func(ctx context.Context) (struct{}, error) {
		if expectedVersion < 0 {
			return struct{}{}, appErrors.InvalidArgument("expectedVersion", "expectedVersion must not be negative")
		}
		exam, err := s.load(ctx, actor, id)
		if err != nil {
			return struct{}{}, err
		}
		if !s.machine.CanDelete(exam.Status) {
			return struct{}{}, appErrors.FailedPrecondition("",
				fmt.Sprintf("only %s exams can be deleted; exam is %s", models.ExamStatusDraft, exam.Status))
		}
		deleted, err := s.repo.Delete(ctx, exam, expectedVersion)
		if err != nil {
			return struct{}{}, storageError(err, "failed to delete exam")
		}
		if !deleted {
			return struct{}{}, notFound("exam")
		}
		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:        models.AuditActionExamDelete,
			Performer:     actor,
			EntityType:    models.EntityExam,
			EntityID:      exam.ID,
			PreviousValue: strPtr(exam.Title),
			Details:       models.AuditDetails{"courseCode": models.StringDetail(exam.CourseCode)},
		})
		return struct{}{}, nil
	})
	return err
}

// PublishExamResults marks results published on a COMPLETED exam. It can
// only happen once.
func (s *ExamService) PublishExamResults(ctx context.Context, actor models.Actor, id string, req dto.PublishExamResultsRequest) (*models.Exam, error) {
	op := Operation{Name: "PublishExamResults", Permission: models.PermExamPublish, RateClass: RateExamWrite}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*models.Exam, error) {
		exam, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		if !s.machine.CanPublishResults(exam.Status) {
			return nil, appErrors.FailedPrecondition("",
				fmt.Sprintf("results can only be published for %s exams; exam is %s", models.ExamStatusCompleted, exam.Status))
		}
		if exam.ResultsPublished {
			return nil, appErrors.FailedPrecondition("", "results are already published")
		}
		updated, err := s.repo.PublishResults(ctx, exam.ID, s.now().UTC(), req.ExpectedVersion)
		if err != nil {
			return nil, storageError(err, "failed to publish results")
		}
		if updated == nil {
			return nil, notFound("exam")
		}
		s.gate.recordAudit(ctx, models.AuditLogEntryDraft{
			Action:        models.AuditActionExamPublish,
			Performer:     actor,
			EntityType:    models.EntityExam,
			EntityID:      updated.ID,
			PreviousValue: strPtr("false"),
			NewValue:      strPtr("true"),
		})
		s.notify(ctx, actor, NotifyResultsPublish, updated, "Results for "+updated.Title+" are published")
		return updated, nil
	})
}

// ListExams returns exams visible to actor, most recently updated first.
func (s *ExamService) ListExams(ctx context.Context, actor models.Actor, query dto.ExamQuery) ([]models.Exam, *models.Pagination, error) {
	op := Operation{Name: "ListExams", Permission: models.PermExamView}
	var page *models.Pagination
	exams, err := run(ctx, s.gate, op, actor, &query, func(ctx context.Context) ([]models.Exam, error) {
		filter := models.ExamFilter{
			Status:        query.Status,
			ScheduledDate: query.ScheduledDate,
			Limit:         models.ClampLimit(query.Limit, defaultListLimit, maxListLimit),
			Offset:        query.Offset,
		}
		if !rbac.ScopeAll(actor.Role, models.CollectionExams) {
			filter.CreatedBy = actor.ID
		}
		exams, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, storageError(err, "failed to list exams")
		}
		page = &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Count: len(exams)}
		return exams, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return exams, page, nil
}

// GetExam returns one exam within actor's scope.
func (s *ExamService) GetExam(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	op := Operation{Name: "GetExam", Permission: models.PermExamView}
	return run(ctx, s.gate, op, actor, nil, func(ctx context.Context) (*models.Exam, error) {
		return s.load(ctx, actor, id)
	})
}

// PreviewExamConflicts runs detection for a proposed schedule without
// writing anything.
func (s *ExamService) PreviewExamConflicts(ctx context.Context, actor models.Actor, req dto.ConflictPreviewRequest) (*dto.ConflictPreviewResponse, error) {
	op := Operation{Name: "PreviewExamConflicts", Permission: models.PermExamView}
	return run(ctx, s.gate, op, actor, &req, func(ctx context.Context) (*dto.ConflictPreviewResponse, error) {
		if err := validateSchedule(req.ScheduledDate, req.StartTime, req.EndTime); err != nil {
			return nil, err
		}
		candidate := conflict.ScheduleFields{
			ExamID:           strings.TrimSpace(req.ExamID),
			ScheduledDate:    req.ScheduledDate,
			StartTime:        req.StartTime,
			EndTime:          req.EndTime,
			Room:             strings.TrimSpace(req.Room),
			EnrolledStudents: normalizeStudents(req.EnrolledStudents),
		}
		conflicts, err := s.conflictsFor(ctx, candidate, req.Capacity)
		if err != nil {
			return nil, err
		}
		return &dto.ConflictPreviewResponse{Conflicts: conflicts, HasErrors: conflict.HasErrors(conflicts)}, nil
	})
}

// conflictsFor loads the same-date snapshot and runs detection, then appends
// the capacity warning.
func (s *ExamService) conflictsFor(ctx context.Context, candidate conflict.ScheduleFields, capacity int) (models.JSONList[models.ConflictRecord], error) {
	existing, err := s.repo.ListByDate(ctx, candidate.ScheduledDate)
	if err != nil {
		return nil, storageError(err, "failed to load exams for conflict detection")
	}
	records := s.detect(candidate, existing)
	if capacityRecord := conflict.CheckCapacity(len(candidate.EnrolledStudents), capacity); capacityRecord != nil {
		records = append(records, *capacityRecord)
	}
	if conflict.HasErrors(records) {
		logger.WithContext(ctx, s.logger).Info("exam schedule has blocking conflicts",
			zap.String("exam_id", candidate.ExamID),
			zap.String("date", candidate.ScheduledDate),
			zap.Int("conflicts", len(records)))
	}
	return models.JSONList[models.ConflictRecord](records), nil
}

func (s *ExamService) load(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.InvalidArgument("id", "exam id is required")
	}
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load exam")
	}
	if exam == nil {
		return nil, notFound("exam")
	}
	if !rbac.ScopeAll(actor.Role, models.CollectionExams) && exam.CreatedBy != actor.ID {
		return nil, notFound("exam")
	}
	return exam, nil
}

func (s *ExamService) notify(ctx context.Context, actor models.Actor, kind string, exam *models.Exam, message string) {
	if s.effects == nil || exam.CreatedBy == actor.ID {
		return
	}
	s.effects.Notify(ctx, Notification{
		Kind:        kind,
		RecipientID: exam.CreatedBy,
		EntityType:  models.EntityExam,
		EntityID:    exam.ID,
		Title:       exam.Title,
		Message:     message,
	})
}

type examPatch struct {
	fields   []string
	schedule bool
}

// applyExamPatch returns the patched copy and the json names of the fields
// that actually changed.
func applyExamPatch(exam models.Exam, req dto.UpdateExamRequest) (models.Exam, examPatch) {
	var p examPatch
	setString := func(dst *string, v *string, field string, schedule bool) {
		if v == nil {
			return
		}
		value := strings.TrimSpace(*v)
		if value == *dst {
			return
		}
		*dst = value
		p.fields = append(p.fields, field)
		p.schedule = p.schedule || schedule
	}
	setInt := func(dst *int, v *int, field string, schedule bool) {
		if v == nil || *v == *dst {
			return
		}
		*dst = *v
		p.fields = append(p.fields, field)
		p.schedule = p.schedule || schedule
	}

	setString(&exam.Title, req.Title, "title", false)
	setString(&exam.CourseCode, req.CourseCode, "courseCode", false)
	setString(&exam.CourseName, req.CourseName, "courseName", false)
	if req.ExamType != nil && *req.ExamType != exam.ExamType {
		exam.ExamType = *req.ExamType
		p.fields = append(p.fields, "examType")
	}
	setString(&exam.ScheduledDate, req.ScheduledDate, "scheduledDate", true)
	setString(&exam.StartTime, req.StartTime, "startTime", true)
	setString(&exam.EndTime, req.EndTime, "endTime", true)
	setInt(&exam.Duration, req.Duration, "duration", false)
	setString(&exam.Room, req.Room, "room", true)
	setString(&exam.Building, req.Building, "building", false)
	setInt(&exam.Capacity, req.Capacity, "capacity", true)
	if req.EnrolledStudents != nil {
		students := normalizeStudents(*req.EnrolledStudents)
		if !sameStudents(students, exam.EnrolledStudents) {
			exam.EnrolledStudents = students
			p.fields = append(p.fields, "enrolledStudents")
			p.schedule = true
		}
	}
	if req.Status != nil && *req.Status != exam.Status {
		exam.Status = *req.Status
		p.fields = append(p.fields, "status")
	}
	return exam, p
}

func validateSchedule(date, start, end string) error {
	if _, err := conflict.ParseDate(date); err != nil {
		return appErrors.InvalidArgument("scheduledDate", err.Error())
	}
	if _, err := conflict.ParseClock(start); err != nil {
		return appErrors.InvalidArgument("startTime", err.Error())
	}
	if _, err := conflict.ParseClock(end); err != nil {
		return appErrors.InvalidArgument("endTime", err.Error())
	}
	if _, err := conflict.ParseInterval(start, end); err != nil {
		return appErrors.InvalidArgument("endTime", "end time must be after start time")
	}
	return nil
}

// durationOrSpan fills an unset duration from the time window.
func durationOrSpan(duration int, start, end string) int {
	if duration > 0 {
		return duration
	}
	window, err := conflict.ParseInterval(start, end)
	if err != nil {
		return 0
	}
	return window.End - window.Start
}

func normalizeStudents(ids []string) models.JSONList[string] {
	out := make(models.JSONList[string], 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameStudents(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

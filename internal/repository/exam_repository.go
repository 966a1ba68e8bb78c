package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

const examColumns = `id, title, course_code, course_name, exam_type, status, scheduled_date, start_time, end_time,
	duration, room, building, capacity, enrolled_students, conflicts, created_by, results_published,
	results_published_at, version, idempotency_key, created_at, updated_at`

// ExamRepository persists exam sittings.
type ExamRepository struct {
	db      *sqlx.DB
	changes changePublisher
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB, channel string) *ExamRepository {
	return &ExamRepository{db: db, changes: changePublisher{channel: channel}}
}

// Create inserts an exam and announces it.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	const query = `INSERT INTO exams (id, title, course_code, course_name, exam_type, status, scheduled_date, start_time, end_time,
	duration, room, building, capacity, enrolled_students, conflicts, created_by, results_published,
	results_published_at, version, idempotency_key, created_at, updated_at)
VALUES (:id, :title, :course_code, :course_name, :exam_type, :status, :scheduled_date, :start_time, :end_time,
	:duration, :room, :building, :capacity, :enrolled_students, :conflicts, :created_by, :results_published,
	:results_published_at, :version, :idempotency_key, :created_at, :updated_at)`
	return withTx(ctx, r.db, "create exam", func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, exam); err != nil {
			return classifyInsert(err, "insert exam")
		}
		return r.changes.publish(ctx, tx, examEvent(exam, models.ChangeInsert))
	})
}

// FindByID returns nil when the exam does not exist.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return &exam, nil
}

// FindByIdempotencyKey returns the exam a caller already created with key.
func (r *ExamRepository) FindByIdempotencyKey(ctx context.Context, createdBy, key string) (*models.Exam, error) {
	var exam models.Exam
	err := r.db.GetContext(ctx, &exam, `SELECT `+examColumns+` FROM exams WHERE created_by = $1 AND idempotency_key = $2`, createdBy, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exam by idempotency key: %w", err)
	}
	return &exam, nil
}

// List returns exams ordered by recency.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + examColumns + ` FROM exams WHERE 1=1`)
	var args []interface{}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		fmt.Fprintf(&b, " AND created_by = $%d", len(args))
	}
	if filter.ScheduledDate != "" {
		args = append(args, filter.ScheduledDate)
		fmt.Fprintf(&b, " AND scheduled_date = $%d", len(args))
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

	exams := []models.Exam{}
	if err := r.db.SelectContext(ctx, &exams, b.String(), args...); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// ListByDate returns every exam on date in a stable order for conflict
// detection.
func (r *ExamRepository) ListByDate(ctx context.Context, date string) ([]models.Exam, error) {
	exams := []models.Exam{}
	query := `SELECT ` + examColumns + ` FROM exams WHERE scheduled_date = $1 ORDER BY start_time ASC, created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &exams, query, date); err != nil {
		return nil, fmt.Errorf("list exams by date: %w", err)
	}
	return exams, nil
}

type examColumn struct {
	name  string
	value func(*models.Exam) interface{}
}

// examFieldColumns maps the json names an edit reports to their columns.
var examFieldColumns = map[string]examColumn{
	"title":            {"title", func(e *models.Exam) interface{} { return e.Title }},
	"courseCode":       {"course_code", func(e *models.Exam) interface{} { return e.CourseCode }},
	"courseName":       {"course_name", func(e *models.Exam) interface{} { return e.CourseName }},
	"examType":         {"exam_type", func(e *models.Exam) interface{} { return e.ExamType }},
	"status":           {"status", func(e *models.Exam) interface{} { return e.Status }},
	"scheduledDate":    {"scheduled_date", func(e *models.Exam) interface{} { return e.ScheduledDate }},
	"startTime":        {"start_time", func(e *models.Exam) interface{} { return e.StartTime }},
	"endTime":          {"end_time", func(e *models.Exam) interface{} { return e.EndTime }},
	"duration":         {"duration", func(e *models.Exam) interface{} { return e.Duration }},
	"room":             {"room", func(e *models.Exam) interface{} { return e.Room }},
	"building":         {"building", func(e *models.Exam) interface{} { return e.Building }},
	"capacity":         {"capacity", func(e *models.Exam) interface{} { return e.Capacity }},
	"enrolledStudents": {"enrolled_students", func(e *models.Exam) interface{} { return e.EnrolledStudents }},
	"conflicts":        {"conflicts", func(e *models.Exam) interface{} { return e.Conflicts }},
}

// Update writes only the columns named in upd.Fields. A status change is
// applied only while the row still holds upd.FromStatus; otherwise the write
// fails with ErrVersionConflict.
func (r *ExamRepository) Update(ctx context.Context, upd models.ExamUpdate) (*models.Exam, error) {
	exam := upd.Exam
	set := make([]string, 0, len(upd.Fields)+1)
	args := make([]interface{}, 0, len(upd.Fields)+1)
	for _, field := range upd.Fields {
		col, ok := examFieldColumns[field]
		if !ok {
			return nil, fmt.Errorf("update exam: unknown field %q", field)
		}
		args = append(args, col.value(exam))
		set = append(set, fmt.Sprintf("%s = $%d", col.name, len(args)))
	}
	args = append(args, exam.UpdatedAt)
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))

	u := conditionalUpdate{set: set, args: args, id: exam.ID, expectedVersion: upd.ExpectedVersion}
	if slices.Contains(upd.Fields, "status") {
		u.guardColumn = "status"
		u.guardValue = upd.FromStatus
	}
	return r.update(ctx, "update exam", u)
}

// PublishResults marks results published. The row must still be COMPLETED.
func (r *ExamRepository) PublishResults(ctx context.Context, id string, at time.Time, expectedVersion int) (*models.Exam, error) {
	return r.update(ctx, "publish exam results", conditionalUpdate{
		set:             []string{"results_published = TRUE", "results_published_at = $1", "updated_at = $2"},
		args:            []interface{}{at, at},
		id:              id,
		expectedVersion: expectedVersion,
		guard:           fmt.Sprintf("status = '%s'", models.ExamStatusCompleted),
	})
}

// Delete removes a DRAFT exam. It returns false when the exam is missing and
// ErrVersionConflict when it exists but is no longer deletable.
func (r *ExamRepository) Delete(ctx context.Context, exam *models.Exam, expectedVersion int) (bool, error) {
	var b strings.Builder
	args := []interface{}{exam.ID, models.ExamStatusDraft}
	b.WriteString(`DELETE FROM exams WHERE id = $1 AND status = $2`)
	if expectedVersion > 0 {
		args = append(args, expectedVersion)
		fmt.Fprintf(&b, " AND version = $%d", len(args))
	}

	var deleted bool
	err := withTx(ctx, r.db, "delete exam", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return fmt.Errorf("delete exam: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete exam rows affected: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)`, exam.ID); err != nil {
				return fmt.Errorf("check exams existence: %w", err)
			}
			if exists {
				return ErrVersionConflict
			}
			return nil
		}
		deleted = true
		return r.changes.publish(ctx, tx, examEvent(exam, models.ChangeDelete))
	})
	return deleted, err
}

func (r *ExamRepository) update(ctx context.Context, label string, u conditionalUpdate) (*models.Exam, error) {
	u.table = "exams"
	u.columns = examColumns
	var exam models.Exam
	var found bool
	err := withTx(ctx, r.db, label, func(tx *sqlx.Tx) error {
		var err error
		found, err = applyUpdate(ctx, tx, u, &exam)
		if err != nil || !found {
			return err
		}
		return r.changes.publish(ctx, tx, examEvent(&exam, models.ChangeUpdate))
	})
	if err != nil || !found {
		return nil, err
	}
	return &exam, nil
}

func examEvent(exam *models.Exam, op models.ChangeOperation) models.ChangeEvent {
	return models.ChangeEvent{Collection: models.CollectionExams, ID: exam.ID, Operation: op, OwnerID: exam.CreatedBy}
}

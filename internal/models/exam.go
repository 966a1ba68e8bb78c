package models

import "time"

// ExamType enumerates supported assessment formats.
type ExamType string

const (
	ExamTypeMidterm   ExamType = "MIDTERM"
	ExamTypeFinal     ExamType = "FINAL"
	ExamTypeQuiz      ExamType = "QUIZ"
	ExamTypePractical ExamType = "PRACTICAL"
	ExamTypeMakeup    ExamType = "MAKEUP"
)

// ExamStatus captures exam lifecycle states.
type ExamStatus string

const (
	ExamStatusDraft      ExamStatus = "DRAFT"
	ExamStatusScheduled  ExamStatus = "SCHEDULED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
	ExamStatusCancelled  ExamStatus = "CANCELLED"
)

// Exam is a scheduled assessment sitting.
type Exam struct {
	ID                 string                   `db:"id" json:"id"`
	Title              string                   `db:"title" json:"title"`
	CourseCode         string                   `db:"course_code" json:"courseCode"`
	CourseName         string                   `db:"course_name" json:"courseName"`
	ExamType           ExamType                 `db:"exam_type" json:"examType"`
	Status             ExamStatus               `db:"status" json:"status"`
	ScheduledDate      string                   `db:"scheduled_date" json:"scheduledDate"`
	StartTime          string                   `db:"start_time" json:"startTime"`
	EndTime            string                   `db:"end_time" json:"endTime"`
	Duration           int                      `db:"duration" json:"duration"`
	Room               string                   `db:"room" json:"room"`
	Building           string                   `db:"building" json:"building"`
	Capacity           int                      `db:"capacity" json:"capacity"`
	EnrolledStudents   JSONList[string]         `db:"enrolled_students" json:"enrolledStudents"`
	Conflicts          JSONList[ConflictRecord] `db:"conflicts" json:"conflicts"`
	CreatedBy          string                   `db:"created_by" json:"createdBy"`
	ResultsPublished   bool                     `db:"results_published" json:"resultsPublished"`
	ResultsPublishedAt *time.Time               `db:"results_published_at" json:"resultsPublishedAt,omitempty"`
	Version            int                      `db:"version" json:"version"`
	IdempotencyKey     *string                  `db:"idempotency_key" json:"-"`
	CreatedAt          time.Time                `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time                `db:"updated_at" json:"updatedAt"`
}

// ExamUpdate names the columns an edit writes. Fields holds json field names
// and may include "conflicts"; unlisted columns keep their stored values.
// FromStatus guards a status change against concurrent transitions.
type ExamUpdate struct {
	Exam            *Exam
	Fields          []string
	FromStatus      ExamStatus
	ExpectedVersion int
}

// ExamFilter constrains listing queries.
type ExamFilter struct {
	CreatedBy     string
	Status        []ExamStatus
	ScheduledDate string
	Limit         int
	Offset        int
}

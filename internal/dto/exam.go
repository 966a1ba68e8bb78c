package dto

import "github.com/noah-isme/campus-ops-api/internal/models"

// CreateExamRequest is the payload for scheduling an exam. New exams start
// as DRAFT unless SCHEDULED is requested.
type CreateExamRequest struct {
	Title            string            `json:"title" validate:"required,max=200"`
	CourseCode       string            `json:"courseCode" validate:"required,max=32"`
	CourseName       string            `json:"courseName" validate:"max=200"`
	ExamType         models.ExamType   `json:"examType" validate:"required,oneof=MIDTERM FINAL QUIZ PRACTICAL MAKEUP"`
	Status           models.ExamStatus `json:"status,omitempty" validate:"omitempty,oneof=DRAFT SCHEDULED"`
	ScheduledDate    string            `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	StartTime        string            `json:"startTime" validate:"required,datetime=15:04"`
	EndTime          string            `json:"endTime" validate:"required,datetime=15:04"`
	Duration         int               `json:"duration" validate:"gte=0,lte=1440"`
	Room             string            `json:"room" validate:"max=64"`
	Building         string            `json:"building" validate:"max=128"`
	Capacity         int               `json:"capacity" validate:"gte=0"`
	EnrolledStudents []string          `json:"enrolledStudents" validate:"omitempty,dive,required,max=64"`
	IdempotencyKey   string            `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
}

// UpdateExamRequest patches an exam. Nil fields are left unchanged.
type UpdateExamRequest struct {
	Title            *string            `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	CourseCode       *string            `json:"courseCode,omitempty" validate:"omitempty,min=1,max=32"`
	CourseName       *string            `json:"courseName,omitempty" validate:"omitempty,max=200"`
	ExamType         *models.ExamType   `json:"examType,omitempty" validate:"omitempty,oneof=MIDTERM FINAL QUIZ PRACTICAL MAKEUP"`
	Status           *models.ExamStatus `json:"status,omitempty" validate:"omitempty,oneof=DRAFT SCHEDULED IN_PROGRESS COMPLETED CANCELLED"`
	ScheduledDate    *string            `json:"scheduledDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime        *string            `json:"startTime,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime          *string            `json:"endTime,omitempty" validate:"omitempty,datetime=15:04"`
	Duration         *int               `json:"duration,omitempty" validate:"omitempty,gte=0,lte=1440"`
	Room             *string            `json:"room,omitempty" validate:"omitempty,max=64"`
	Building         *string            `json:"building,omitempty" validate:"omitempty,max=128"`
	Capacity         *int               `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	EnrolledStudents *[]string          `json:"enrolledStudents,omitempty" validate:"omitempty,dive,required,max=64"`
	ExpectedVersion  int                `json:"expectedVersion,omitempty" validate:"gte=0"`
}

// Empty reports whether the patch changes nothing.
func (r UpdateExamRequest) Empty() bool {
	return r.Title == nil && r.CourseCode == nil && r.CourseName == nil && r.ExamType == nil &&
		r.Status == nil && r.ScheduledDate == nil && r.StartTime == nil && r.EndTime == nil &&
		r.Duration == nil && r.Room == nil && r.Building == nil && r.Capacity == nil && r.EnrolledStudents == nil
}

// PublishExamResultsRequest carries the optional version guard.
type PublishExamResultsRequest struct {
	ExpectedVersion int `json:"expectedVersion,omitempty" validate:"gte=0"`
}

// ConflictPreviewRequest runs the detector without writing. ExamID excludes
// an existing exam from its own comparison.
type ConflictPreviewRequest struct {
	ExamID           string   `json:"examId,omitempty" validate:"omitempty,max=64"`
	ScheduledDate    string   `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	StartTime        string   `json:"startTime" validate:"required,datetime=15:04"`
	EndTime          string   `json:"endTime" validate:"required,datetime=15:04"`
	Room             string   `json:"room" validate:"max=64"`
	Capacity         int      `json:"capacity" validate:"gte=0"`
	EnrolledStudents []string `json:"enrolledStudents" validate:"omitempty,dive,required,max=64"`
}

// ConflictPreviewResponse lists detected conflicts.
type ConflictPreviewResponse struct {
	Conflicts []models.ConflictRecord `json:"conflicts"`
	HasErrors bool                    `json:"hasErrors"`
}

// ExamQuery mirrors supported listing filters.
type ExamQuery struct {
	Status        []models.ExamStatus `validate:"dive,oneof=DRAFT SCHEDULED IN_PROGRESS COMPLETED CANCELLED"`
	ScheduledDate string              `validate:"omitempty,datetime=2006-01-02"`
	Limit         int                 `validate:"gte=0,lte=200"`
	Offset        int                 `validate:"gte=0"`
}

// Package conflict reports room and student overlaps between exam schedules.
package conflict

import (
	"fmt"
	"strings"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

// ScheduleFields is the part of an exam the detector looks at.
type ScheduleFields struct {
	ExamID           string   `json:"examId,omitempty" yaml:"examId"`
	ScheduledDate    string   `json:"scheduledDate" yaml:"scheduledDate"`
	StartTime        string   `json:"startTime" yaml:"startTime"`
	EndTime          string   `json:"endTime" yaml:"endTime"`
	Room             string   `json:"room" yaml:"room"`
	EnrolledStudents []string `json:"enrolledStudents" yaml:"enrolledStudents"`
}

// FieldsOf extracts the schedule fields of an exam.
func FieldsOf(exam models.Exam) ScheduleFields {
	return ScheduleFields{
		ExamID:           exam.ID,
		ScheduledDate:    exam.ScheduledDate,
		StartTime:        exam.StartTime,
		EndTime:          exam.EndTime,
		Room:             exam.Room,
		EnrolledStudents: []string(exam.EnrolledStudents),
	}
}

// DetectConflicts scans existing in order and reports, per exam, a room
// conflict (ERROR) and/or a student conflict (WARNING). Cancelled and
// completed exams and the candidate itself are ignored. The result is never
// nil so callers can attach it as-is.
func DetectConflicts(candidate ScheduleFields, existing []models.Exam) []models.ConflictRecord {
	conflicts := make([]models.ConflictRecord, 0)
	window, err := ParseInterval(candidate.StartTime, candidate.EndTime)
	if err != nil {
		return conflicts
	}
	date := strings.TrimSpace(candidate.ScheduledDate)
	room := normalizeRoom(candidate.Room)
	students := make(map[string]struct{}, len(candidate.EnrolledStudents))
	for _, id := range candidate.EnrolledStudents {
		students[id] = struct{}{}
	}

	for _, other := range existing {
		if candidate.ExamID != "" && other.ID == candidate.ExamID {
			continue
		}
		if other.Status == models.ExamStatusCancelled || other.Status == models.ExamStatusCompleted {
			continue
		}
		if strings.TrimSpace(other.ScheduledDate) != date {
			continue
		}
		otherWindow, err := ParseInterval(other.StartTime, other.EndTime)
		if err != nil || !Overlaps(window, otherWindow) {
			continue
		}

		if room != "" && normalizeRoom(other.Room) == room {
			conflicts = append(conflicts, models.ConflictRecord{
				Type:            models.ConflictTypeRoom,
				Severity:        models.SeverityError,
				ConflictingID:   other.ID,
				ConflictingName: other.Title,
				Message: fmt.Sprintf("room %s is already booked for %s (%s-%s)",
					strings.TrimSpace(other.Room), other.Title, other.StartTime, other.EndTime),
			})
		}

		if shared := countShared(students, other.EnrolledStudents); shared > 0 {
			conflicts = append(conflicts, models.ConflictRecord{
				Type:            models.ConflictTypeStudent,
				Severity:        models.SeverityWarning,
				ConflictingID:   other.ID,
				ConflictingName: other.Title,
				Message: fmt.Sprintf("%d enrolled student(s) also sit %s (%s-%s)",
					shared, other.Title, other.StartTime, other.EndTime),
			})
		}
	}
	return conflicts
}

// CheckCapacity flags enrollment above capacity. It never rejects.
func CheckCapacity(enrolled, capacity int) *models.ConflictRecord {
	if capacity <= 0 || enrolled <= capacity {
		return nil
	}
	return &models.ConflictRecord{
		Type:     models.ConflictTypeCapacity,
		Severity: models.SeverityWarning,
		Message:  fmt.Sprintf("%d students enrolled for a capacity of %d", enrolled, capacity),
	}
}

// HasErrors reports whether any record is severity ERROR.
func HasErrors(records []models.ConflictRecord) bool {
	for _, r := range records {
		if r.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

func countShared(students map[string]struct{}, other []string) int {
	if len(students) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(other))
	shared := 0
	for _, id := range other {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := students[id]; ok {
			shared++
		}
	}
	return shared
}

func normalizeRoom(room string) string {
	return strings.ToLower(strings.TrimSpace(room))
}

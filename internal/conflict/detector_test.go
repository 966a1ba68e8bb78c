package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

const examDate = "2026-11-02"

func scheduled(id, room, start, end string, students ...string) models.Exam {
	return models.Exam{
		ID:               id,
		Title:            "Exam " + id,
		Status:           models.ExamStatusScheduled,
		ScheduledDate:    examDate,
		StartTime:        start,
		EndTime:          end,
		Room:             room,
		EnrolledStudents: students,
	}
}

func TestRoomOverlapProducesOneError(t *testing.T) {
	existing := []models.Exam{scheduled("A", "R1", "09:00", "11:00")}
	candidate := ScheduleFields{ScheduledDate: examDate, StartTime: "10:00", EndTime: "12:00", Room: "R1"}

	got := DetectConflicts(candidate, existing)
	require.Len(t, got, 1)
	assert.Equal(t, models.ConflictTypeRoom, got[0].Type)
	assert.Equal(t, models.SeverityError, got[0].Severity)
	assert.Equal(t, "A", got[0].ConflictingID)
	assert.True(t, HasErrors(got))
}

func TestBackToBackIsNotAConflict(t *testing.T) {
	existing := []models.Exam{scheduled("A", "R1", "09:00", "10:00")}
	candidate := ScheduleFields{ScheduledDate: examDate, StartTime: "10:00", EndTime: "11:00", Room: "R1"}

	assert.Empty(t, DetectConflicts(candidate, existing))
}

func TestStudentOverlapAcrossRooms(t *testing.T) {
	existing := []models.Exam{scheduled("A", "R1", "09:00", "10:00", "s1", "s2")}
	candidate := ScheduleFields{
		ScheduledDate:    examDate,
		StartTime:        "09:30",
		EndTime:          "10:30",
		Room:             "R2",
		EnrolledStudents: []string{"s2", "s3"},
	}

	got := DetectConflicts(candidate, existing)
	require.Len(t, got, 1)
	assert.Equal(t, models.ConflictTypeStudent, got[0].Type)
	assert.Equal(t, models.SeverityWarning, got[0].Severity)
	assert.Equal(t, "A", got[0].ConflictingID)
	assert.False(t, HasErrors(got))
}

func TestStudentConflictIsPerExamNotPerStudent(t *testing.T) {
	existing := []models.Exam{scheduled("A", "R9", "09:00", "10:00", "s1", "s2", "s3")}
	candidate := ScheduleFields{ScheduledDate: examDate, StartTime: "09:00", EndTime: "10:00", Room: "R1", EnrolledStudents: []string{"s1", "s2", "s3"}}

	got := DetectConflicts(candidate, existing)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "3 enrolled")
}

func TestRoomAndStudentOnSameExam(t *testing.T) {
	existing := []models.Exam{scheduled("A", "r1 ", "09:00", "10:00", "s1")}
	candidate := ScheduleFields{ScheduledDate: examDate, StartTime: "09:15", EndTime: "09:45", Room: "R1", EnrolledStudents: []string{"s1"}}

	got := DetectConflicts(candidate, existing)
	require.Len(t, got, 2)
	assert.Equal(t, models.ConflictTypeRoom, got[0].Type)
	assert.Equal(t, models.ConflictTypeStudent, got[1].Type)
}

func TestSkipsInactiveSelfAndOtherDates(t *testing.T) {
	cancelled := scheduled("C", "R1", "09:00", "10:00")
	cancelled.Status = models.ExamStatusCancelled
	completed := scheduled("D", "R1", "09:00", "10:00")
	completed.Status = models.ExamStatusCompleted
	otherDay := scheduled("E", "R1", "09:00", "10:00")
	otherDay.ScheduledDate = "2026-11-03"
	self := scheduled("SELF", "R1", "09:00", "10:00")
	broken := scheduled("F", "R1", "9am", "10:00")

	candidate := ScheduleFields{ExamID: "SELF", ScheduledDate: examDate, StartTime: "09:00", EndTime: "10:00", Room: "R1"}
	assert.Empty(t, DetectConflicts(candidate, []models.Exam{cancelled, completed, otherDay, self, broken}))
}

func TestEmptyRoomSkipsRoomCheck(t *testing.T) {
	existing := []models.Exam{scheduled("A", "", "09:00", "10:00")}
	candidate := ScheduleFields{ScheduledDate: examDate, StartTime: "09:00", EndTime: "10:00"}
	assert.Empty(t, DetectConflicts(candidate, existing))
}

func TestDetectConflictsIdempotentAndOrdered(t *testing.T) {
	existing := []models.Exam{
		scheduled("B", "R1", "08:00", "12:00", "s1"),
		scheduled("A", "R2", "09:00", "10:00", "s1"),
		scheduled("C", "R1", "09:30", "09:45"),
	}
	candidate := ScheduleFields{ScheduledDate: examDate, StartTime: "09:00", EndTime: "10:00", Room: "R1", EnrolledStudents: []string{"s1"}}

	first := DetectConflicts(candidate, existing)
	second := DetectConflicts(candidate, existing)
	assert.Equal(t, first, second)

	ids := make([]string, 0, len(first))
	for _, c := range first {
		ids = append(ids, c.ConflictingID+":"+string(c.Type))
	}
	assert.Equal(t, []string{"B:ROOM", "B:STUDENT", "A:STUDENT", "C:ROOM"}, ids)
}

func TestInvalidCandidateYieldsEmptyList(t *testing.T) {
	got := DetectConflicts(ScheduleFields{StartTime: "11:00", EndTime: "10:00"}, []models.Exam{scheduled("A", "R1", "09:00", "12:00")})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCheckCapacity(t *testing.T) {
	assert.Nil(t, CheckCapacity(30, 30))
	assert.Nil(t, CheckCapacity(10, 0))
	record := CheckCapacity(31, 30)
	require.NotNil(t, record)
	assert.Equal(t, models.ConflictTypeCapacity, record.Type)
	assert.Equal(t, models.SeverityWarning, record.Severity)
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, minutes)

	minutes, err = ParseClock("7:05")
	require.NoError(t, err)
	assert.Equal(t, 425, minutes)

	for _, bad := range []string{"", "24:00", "12:60", "1230", "12:5", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseInterval("10:00", "10:00")
	assert.Error(t, err)
	_, err = ParseDate("2026-02-30")
	assert.Error(t, err)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(Interval{540, 660}, Interval{600, 720}))
	assert.False(t, Overlaps(Interval{540, 600}, Interval{600, 660}))
	assert.True(t, Overlaps(Interval{540, 720}, Interval{600, 630}))
}

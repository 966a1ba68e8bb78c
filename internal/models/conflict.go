package models

// ConflictType classifies a scheduling overlap.
type ConflictType string

const (
	ConflictTypeRoom     ConflictType = "ROOM"
	ConflictTypeTime     ConflictType = "TIME"
	ConflictTypeStudent  ConflictType = "STUDENT"
	ConflictTypeCapacity ConflictType = "CAPACITY"
)

// ConflictSeverity tells callers whether a conflict should block in the UI.
type ConflictSeverity string

const (
	SeverityWarning ConflictSeverity = "WARNING"
	SeverityError   ConflictSeverity = "ERROR"
)

// ConflictRecord is a derived, non-authoritative overlap report.
type ConflictRecord struct {
	Type            ConflictType     `json:"type"`
	Severity        ConflictSeverity `json:"severity"`
	ConflictingID   string           `json:"conflictingExamId,omitempty"`
	ConflictingName string           `json:"conflictingExamTitle,omitempty"`
	Message         string           `json:"message"`
}

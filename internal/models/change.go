package models

// Collection names a storage collection.
type Collection string

const (
	CollectionTasks     Collection = "tasks"
	CollectionExams     Collection = "exams"
	CollectionAuditLogs Collection = "auditLogs"
)

// ChangeOperation describes what happened to a document.
type ChangeOperation string

const (
	ChangeInsert ChangeOperation = "insert"
	ChangeUpdate ChangeOperation = "update"
	ChangeDelete ChangeOperation = "delete"
)

// ChangeEvent is emitted by storage after a committed write.
type ChangeEvent struct {
	Collection Collection      `json:"collection"`
	ID         string          `json:"id"`
	Operation  ChangeOperation `json:"op"`
	OwnerID    string          `json:"ownerId"`
}

package realtime

import (
	"context"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

// Document is one entity in a snapshot.
type Document struct {
	ID   string      `json:"id"`
	Data interface{} `json:"data"`
}

// Source loads a collection snapshot ordered by recency. An empty ownerID
// means the whole collection.
type Source interface {
	Load(ctx context.Context, ownerID string) ([]Document, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ownerID string) ([]Document, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context, ownerID string) ([]Document, error) {
	return f(ctx, ownerID)
}

type taskLister interface {
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
}

type examLister interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error)
}

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error)
}

// TaskSource snapshots tasks, newest first, capped at limit.
func TaskSource(store taskLister, limit int) Source {
	return SourceFunc(func(ctx context.Context, ownerID string) ([]Document, error) {
		tasks, err := store.List(ctx, models.TaskFilter{CreatedBy: ownerID, Limit: limit})
		if err != nil {
			return nil, err
		}
		docs := make([]Document, len(tasks))
		for i := range tasks {
			docs[i] = Document{ID: tasks[i].ID, Data: tasks[i]}
		}
		return docs, nil
	})
}

// ExamSource snapshots exams, newest first, capped at limit.
func ExamSource(store examLister, limit int) Source {
	return SourceFunc(func(ctx context.Context, ownerID string) ([]Document, error) {
		exams, err := store.List(ctx, models.ExamFilter{CreatedBy: ownerID, Limit: limit})
		if err != nil {
			return nil, err
		}
		docs := make([]Document, len(exams))
		for i := range exams {
			docs[i] = Document{ID: exams[i].ID, Data: exams[i]}
		}
		return docs, nil
	})
}

// AuditSource snapshots the most recent audit entries. Audit history is never
// owner-scoped; access is decided by permission alone.
func AuditSource(store auditLister, limit int) Source {
	return SourceFunc(func(ctx context.Context, _ string) ([]Document, error) {
		entries, err := store.List(ctx, models.AuditFilter{Limit: limit})
		if err != nil {
			return nil, err
		}
		docs := make([]Document, len(entries))
		for i := range entries {
			docs[i] = Document{ID: entries[i].ID, Data: entries[i]}
		}
		return docs, nil
	})
}

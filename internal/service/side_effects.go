package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/pkg/jobs"
	"github.com/noah-isme/campus-ops-api/pkg/logger"
)

// Side effect job types.
const (
	JobTaskSummary = "task.summary"
	JobNotify      = "notify"
)

// Notification kinds.
const (
	NotifyTaskAssigned   = "task.assigned"
	NotifyTaskStatus     = "task.status"
	NotifyTaskComment    = "task.comment"
	NotifyExamScheduled  = "exam.scheduled"
	NotifyExamCancelled  = "exam.cancelled"
	NotifyResultsPublish = "exam.results_published"
)

const maxSummaryLength = 600

// Summarizer produces a short digest of a task. Implementations may call an
// external text model; failures are retried by the queue and then dropped.
type Summarizer interface {
	Summarize(ctx context.Context, task models.Task) (string, error)
}

// Notifier delivers a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is a best-effort message to one recipient.
type Notification struct {
	Kind        string `json:"kind"`
	RecipientID string `json:"recipientId"`
	EntityType  string `json:"entityType"`
	EntityID    string `json:"entityId"`
	Title       string `json:"title"`
	Message     string `json:"message"`
}

type summaryWriter interface {
	AttachSummary(ctx context.Context, taskID, summary string) (*models.Task, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
	Handle(jobType string, handler jobs.Handler)
}

type sideEffects interface {
	RequestSummary(ctx context.Context, task models.Task)
	Notify(ctx context.Context, n Notification)
}

// SideEffectDispatcher hands detached work to the job queue. Nothing it does
// can fail the mutation that triggered it.
type SideEffectDispatcher struct {
	queue  jobQueue
	logger *zap.Logger
}

// NewSideEffectDispatcher constructs a dispatcher on top of queue.
func NewSideEffectDispatcher(queue jobQueue, logger *zap.Logger) *SideEffectDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffectDispatcher{queue: queue, logger: logger}
}

// HandleSummaries registers the summary job. writer is usually the
// TaskService, which is built after the dispatcher.
func (d *SideEffectDispatcher) HandleSummaries(summarizer Summarizer, writer summaryWriter) {
	d.queue.Handle(JobTaskSummary, func(ctx context.Context, job jobs.Job) error {
		task, ok := job.Payload.(models.Task)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, JobTaskSummary)
		}
		summary, err := summarizer.Summarize(ctx, task)
		if err != nil {
			return fmt.Errorf("summarize task %s: %w", task.ID, err)
		}
		summary = strings.TrimSpace(summary)
		if summary == "" {
			return nil
		}
		if _, err := writer.AttachSummary(ctx, task.ID, summary); err != nil {
			return fmt.Errorf("attach summary to task %s: %w", task.ID, err)
		}
		return nil
	})
}

// HandleNotifications registers the notify job.
func (d *SideEffectDispatcher) HandleNotifications(notifier Notifier) {
	d.queue.Handle(JobNotify, func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(Notification)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, JobNotify)
		}
		return notifier.Notify(ctx, n)
	})
}

// RequestSummary schedules a summary refresh for task.
func (d *SideEffectDispatcher) RequestSummary(ctx context.Context, task models.Task) {
	d.enqueue(ctx, jobs.Job{ID: task.ID, Type: JobTaskSummary, Payload: task})
}

// Notify schedules a notification. Empty recipients are ignored.
func (d *SideEffectDispatcher) Notify(ctx context.Context, n Notification) {
	if n.RecipientID == "" {
		return
	}
	d.enqueue(ctx, jobs.Job{ID: n.EntityID, Type: JobNotify, Payload: n})
}

func (d *SideEffectDispatcher) enqueue(ctx context.Context, job jobs.Job) {
	if d == nil || d.queue == nil {
		return
	}
	if err := d.queue.Enqueue(job); err != nil {
		log := logger.WithContext(ctx, d.logger)
		fields := []zap.Field{zap.String("job_type", job.Type), zap.String("entity_id", job.ID), zap.Error(err)}
		if errors.Is(err, jobs.ErrQueueFull) {
			log.Warn("side effect dropped, queue full", fields...)
			return
		}
		log.Warn("failed to enqueue side effect", fields...)
	}
}

// ExtractiveSummarizer builds a summary from the task text without any
// external model: the leading sentences of the description followed by the
// most recent comment.
type ExtractiveSummarizer struct {
	MaxLength int
}

// Summarize implements Summarizer.
func (s ExtractiveSummarizer) Summarize(_ context.Context, task models.Task) (string, error) {
	limit := s.MaxLength
	if limit <= 0 {
		limit = maxSummaryLength
	}
	var parts []string
	if lead := leadSentences(task.Description, 2); lead != "" {
		parts = append(parts, lead)
	}
	if n := len(task.Comments); n > 0 {
		last := task.Comments[n-1]
		parts = append(parts, fmt.Sprintf("Latest from %s: %s", last.AuthorName, leadSentences(last.Body, 1)))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return truncateRunes(strings.Join(parts, " "), limit), nil
}

func leadSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	end := 0
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(text[end:], ".!?")
		if idx < 0 {
			return text
		}
		end += idx + 1
	}
	return strings.TrimSpace(text[:end])
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// LogNotifier writes notifications to the log. It stands in for a push
// delivery provider.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, msg Notification) error {
	log := n.Logger
	if log == nil {
		log = zap.NewNop()
	}
	logger.WithContext(ctx, log).Info("notification dispatched",
		zap.String("kind", msg.Kind),
		zap.String("recipient_id", msg.RecipientID),
		zap.String("entity_type", msg.EntityType),
		zap.String("entity_id", msg.EntityID),
		zap.String("title", msg.Title))
	return nil
}

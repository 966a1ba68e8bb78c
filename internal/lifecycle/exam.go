package lifecycle

import "github.com/noah-isme/campus-ops-api/internal/models"

var examMachine = machine[models.ExamStatus]{
	states: map[models.ExamStatus]struct{}{
		models.ExamStatusDraft:      {},
		models.ExamStatusScheduled:  {},
		models.ExamStatusInProgress: {},
		models.ExamStatusCompleted:  {},
		models.ExamStatusCancelled:  {},
	},
	edges: edges(
		[2]models.ExamStatus{models.ExamStatusDraft, models.ExamStatusScheduled},
		[2]models.ExamStatus{models.ExamStatusScheduled, models.ExamStatusInProgress},
		[2]models.ExamStatus{models.ExamStatusInProgress, models.ExamStatusCompleted},
		[2]models.ExamStatus{models.ExamStatusDraft, models.ExamStatusCancelled},
		[2]models.ExamStatus{models.ExamStatusScheduled, models.ExamStatusCancelled},
	),
}

// ExamMachine exposes the exam lifecycle.
type ExamMachine struct{}

// Exam returns the exam lifecycle machine.
func Exam() ExamMachine { return ExamMachine{} }

// Valid reports whether status is a known exam state.
func (ExamMachine) Valid(status models.ExamStatus) bool { return examMachine.valid(status) }

// CanTransition reports whether the edge is in the exam table.
func (ExamMachine) CanTransition(current, requested models.ExamStatus) bool {
	return examMachine.canTransition(current, requested)
}

// Next lists the successors of a state.
func (ExamMachine) Next(current models.ExamStatus) []models.ExamStatus {
	return examMachine.next(current)
}

// CanDelete holds only for drafts.
func (ExamMachine) CanDelete(status models.ExamStatus) bool {
	return status == models.ExamStatusDraft
}

// CanPublishResults holds only once the exam is completed.
func (ExamMachine) CanPublishResults(status models.ExamStatus) bool {
	return status == models.ExamStatusCompleted
}

// IsTerminal reports states with no outgoing edges.
func (ExamMachine) IsTerminal(status models.ExamStatus) bool {
	return status == models.ExamStatusCompleted || status == models.ExamStatusCancelled
}

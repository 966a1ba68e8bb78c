package lifecycle

import "github.com/noah-isme/campus-ops-api/internal/models"

var taskMachine = machine[models.TaskStatus]{
	states: map[models.TaskStatus]struct{}{
		models.TaskStatusNew:        {},
		models.TaskStatusInProgress: {},
		models.TaskStatusResolved:   {},
		models.TaskStatusEscalated:  {},
	},
	edges: edges(
		[2]models.TaskStatus{models.TaskStatusNew, models.TaskStatusInProgress},
		[2]models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusResolved},
		[2]models.TaskStatus{models.TaskStatusNew, models.TaskStatusEscalated},
		[2]models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusEscalated},
		[2]models.TaskStatus{models.TaskStatusEscalated, models.TaskStatusResolved},
	),
}

// TaskMachine exposes the task lifecycle.
type TaskMachine struct{}

// Task returns the task lifecycle machine.
func Task() TaskMachine { return TaskMachine{} }

// Valid reports whether status is a known task state.
func (TaskMachine) Valid(status models.TaskStatus) bool { return taskMachine.valid(status) }

// CanTransition reports whether the edge is in the task table.
func (TaskMachine) CanTransition(current, requested models.TaskStatus) bool {
	return taskMachine.canTransition(current, requested)
}

// Permits is what the write path consults. Besides the table it lets a
// RESOLVED task move to any other known state (reopen), which the table does
// not list but which has never been blocked for callers.
func (m TaskMachine) Permits(current, requested models.TaskStatus) bool {
	if m.CanTransition(current, requested) {
		return true
	}
	return IsReopen(current, requested)
}

// IsReopen reports a transition out of RESOLVED.
func IsReopen(current, requested models.TaskStatus) bool {
	return current == models.TaskStatusResolved && requested != current && taskMachine.valid(requested)
}

// Next lists the table successors of a state, as offered to the UI.
func (TaskMachine) Next(current models.TaskStatus) []models.TaskStatus {
	return taskMachine.next(current)
}

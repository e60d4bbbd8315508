package scheduler

import (
	"git.home.luguber.info/inful/cybuild/internal/scan"
)

// TaskStatus represents the current status of a build task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Task is one unit of build work. Exactly one task exists per source
// unit per run; only the worker that claimed it mutates it.
type Task struct {
	Unit          scan.SourceUnit
	AnnotatedPath string
	Status        TaskStatus

	// contentHash carries the hash computed during the staleness check
	// so a successful compile does not hash the file a second time.
	contentHash string
}

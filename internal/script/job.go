package script

import "time"

// JobStatus is the lifecycle state of one script job.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"

	// Terminal states. Every job ends in exactly one of these.
	StatusCompleted JobStatus = "completed" // exit code 0
	StatusFailed    JobStatus = "failed"    // non-zero exit code
	StatusTimeout   JobStatus = "timeout"   // killed at the deadline
	StatusError     JobStatus = "error"     // could not start at all
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusError:
		return true
	}
	return false
}

// SourceType selects how a Spec's payload is interpreted.
type SourceType string

const (
	SourceInline SourceType = "inline" // Content holds the script body
	SourceFile   SourceType = "file"   // Path points at an existing script
)

// Spec describes one script to execute.
type Spec struct {
	Type    SourceType
	Content string
	Path    string
	WorkDir string
	Timeout time.Duration // zero means the pool default
}

// Job is one tracked script execution. Label carries the caller's
// context ("port 8080 stopped", "manual") for logs and the job table.
type Job struct {
	ID     string
	Label  string
	Spec   Spec
	Status JobStatus

	ExitCode int
	Error    string

	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time the job spent running, zero until it
// finishes.
func (j Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

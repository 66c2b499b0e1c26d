package models

import "time"

// RunScope identifies what a generation run covers.
type RunScope string

const (
	RunScopeClass  RunScope = "CLASS"
	RunScopeSchool RunScope = "SCHOOL"
)

// RunStatus is the lifecycle state of a generation run. COMPLETED means a
// timetable was written; INCOMPLETE means the run finished without one
// (infeasible, no available teacher, or budget exhausted); FAILED covers
// configuration and infrastructure errors.
type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusRunning    RunStatus = "RUNNING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusIncomplete RunStatus = "INCOMPLETE"
	RunStatusFailed     RunStatus = "FAILED"
)

// GenerationRun records one timetable generation attempt end to end.
type GenerationRun struct {
	ID             string     `db:"id" json:"id"`
	Scope          RunScope   `db:"scope" json:"scope"`
	ClassID        *string    `db:"class_id" json:"class_id,omitempty"`
	Status         RunStatus  `db:"status" json:"status"`
	ErrorCode      *string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	ClassesTotal   int        `db:"classes_total" json:"classes_total"`
	EntriesWritten int        `db:"entries_written" json:"entries_written"`
	RequestedBy    *string    `db:"requested_by" json:"requested_by,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

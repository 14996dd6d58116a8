package domain

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an ActiveJobMarker.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status closes a marker.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ActiveJobMarker is the durable single-flight record. At most one row per
// user may be running at any time.
type ActiveJobMarker struct {
	ID          string
	UserID      string
	JobType     MediaKind
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt *time.Time
}

// ProviderState tracks one upstream call chain.
type ProviderState string

const (
	ProviderPending   ProviderState = "PENDING"
	ProviderRunning   ProviderState = "RUNNING"
	ProviderCompleted ProviderState = "COMPLETED"
	ProviderFailed    ProviderState = "FAILED"
)

var providerTransitions = map[ProviderState][]ProviderState{
	ProviderPending: {ProviderRunning},
	ProviderRunning: {ProviderRunning, ProviderCompleted, ProviderFailed},
}

// ProviderJob is the request scoped runtime state of one dispatch. It is
// never persisted.
type ProviderJob struct {
	ID             string
	ModelID        string
	ProviderTaskID string
	State          ProviderState
	StartedAt      time.Time
	Attempts       int
}

func NewProviderJob(id, modelID string, now time.Time) *ProviderJob {
	return &ProviderJob{ID: id, ModelID: modelID, State: ProviderPending, StartedAt: now}
}

// Advance moves the job along PENDING -> RUNNING -> COMPLETED|FAILED.
func (j *ProviderJob) Advance(next ProviderState) error {
	for _, allowed := range providerTransitions[j.State] {
		if allowed == next {
			j.State = next
			return nil
		}
	}
	return fmt.Errorf("provider job %s: illegal transition %s -> %s", j.ID, j.State, next)
}

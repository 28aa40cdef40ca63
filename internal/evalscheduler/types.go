// Package evalscheduler implements the Evaluation Scheduler: delayed,
// retried composition of Manifest Store + Deployment Tracker. It does
// not consult the Placement Engine.
package evalscheduler

import "time"

// State is the EvaluationTask lifecycle.
type State string

const (
	StateScheduled State = "scheduled"
	StateFiring    State = "firing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether state no longer transitions: terminal
// states are absorbing.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Task is a scheduled future invocation of the benchmark run
// pipeline.
type Task struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	BenchmarkType    string    `json:"benchmark_type"`
	JobFileID        string    `json:"job_file_id"`
	ConfigFileID     string    `json:"config_file_id,omitempty"`
	ModifiedJobID    string    `json:"modified_job_id,omitempty"`
	ModifiedConfigID string    `json:"modified_config_id,omitempty"`
	ModelEndpoint    string    `json:"model_endpoint"`
	Name             string    `json:"name"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	State            State     `json:"state"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"last_error,omitempty"`
	DeploymentID     string    `json:"deployment_id,omitempty"`
}

func (t Task) DocID() string           { return t.ID }
func (t Task) DocUpdatedAt() time.Time { return t.UpdatedAt }

// Request is the input to Schedule.
type Request struct {
	ProjectID        string
	BenchmarkType    string
	JobFileID        string
	ConfigFileID     string
	ModifiedJobID    string
	ModifiedConfigID string
	ModelEndpoint    string
	Name             string
}

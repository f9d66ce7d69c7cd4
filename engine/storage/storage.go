// Package storage defines types and primitives for workflow engine storage backends.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyInstance       = errors.New("empty instance")
	ErrMissingWorkflowName = errors.New("missing workflow name")
	ErrMissingInstanceID   = errors.New("missing instance id")

	// ErrInstanceNotFound is returned when an instance ID is unknown.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceExists is returned when creating an instance ID that
	// is already stored.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrStepAlreadyRecorded is returned when recording a step index
	// that already has a recorded output. The step log is append-only
	// and single-writer; a duplicate record indicates two executions of
	// the same instance, which the engine must never allow.
	ErrStepAlreadyRecorded = errors.New("step already recorded")

	ErrEmptyStepRecord = errors.New("empty step record")
)

// Instance is the persisted state of one workflow instance.
type Instance struct {
	InstanceID   string
	WorkflowName string
	Context      []byte // raw start request body (workflow input)
	CustomStatus string // last published custom status (a JSON string)
	StartedAt    time.Time

	// terminal state; Result is the raw terminal payload
	Done        bool
	Result      []byte
	CompletedAt time.Time
}

// Validate checks for missing values.
func (i *Instance) Validate() error {
	if i == nil {
		return ErrEmptyInstance
	}
	if i.InstanceID == "" {
		return ErrMissingInstanceID
	}
	if i.WorkflowName == "" {
		return ErrMissingWorkflowName
	}
	return nil
}

// StepRecord is the durably recorded output of one completed step.
// Records are keyed by (instance, index) and written exactly once; a
// resumed instance replays them in index order.
type StepRecord struct {
	Index      int
	Name       string
	Output     []byte
	RecordedAt time.Time
}

// Validate checks sr for issues.
func (sr *StepRecord) Validate() error {
	if sr == nil {
		return ErrEmptyStepRecord
	}
	if sr.Index < 0 {
		return errors.New("negative step index")
	}
	if sr.Name == "" {
		return errors.New("missing step name")
	}
	return nil
}

// Storage is the interface for workflow engine instance storage backends.
type Storage interface {
	// CreateInstance stores a new workflow instance record.
	// ErrInstanceExists is returned for a duplicate instance ID.
	CreateInstance(ctx context.Context, i *Instance) error

	// RetrieveInstance fetches an instance by ID.
	// ErrInstanceNotFound is returned for unknown IDs.
	RetrieveInstance(ctx context.Context, instanceID string) (*Instance, error)

	// RecordStepResult durably records a completed step's output.
	// ErrStepAlreadyRecorded is returned if the index already has a record.
	RecordStepResult(ctx context.Context, instanceID string, sr *StepRecord) error

	// RetrieveStepRecord fetches the recorded step at index, if recorded.
	RetrieveStepRecord(ctx context.Context, instanceID string, index int) (*StepRecord, bool, error)

	// SetCustomStatus stores the externally-queryable progress status.
	// Readers of the instance must see the last fully-written value.
	SetCustomStatus(ctx context.Context, instanceID string, status string) error

	// RecordInstanceResult marks an instance done with its terminal result.
	RecordInstanceResult(ctx context.Context, instanceID string, result []byte, completedAt time.Time) error

	// RetrieveIncompleteInstances lists instances that are not done.
	// Used to resume in-flight instances after a process restart.
	RetrieveIncompleteInstances(ctx context.Context) ([]*Instance, error)

	// RetrieveCompletedBefore lists IDs of done instances completed before t.
	RetrieveCompletedBefore(ctx context.Context, t time.Time) ([]string, error)

	// DeleteInstance removes an instance and its step records.
	DeleteInstance(ctx context.Context, instanceID string) error
}

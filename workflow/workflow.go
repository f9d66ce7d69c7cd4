package workflow

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimedOut is returned by a command dispatch when no response
	// arrived within the wait window. Retry by issuing a new command
	// with a new token, never by reusing the old wait.
	ErrTimedOut = errors.New("no response within the wait window")

	// ErrStepNameMismatch indicates a recorded step replayed under a
	// different name than it executes as. This means the workflow code
	// changed its step order underneath a resumed instance.
	ErrStepNameMismatch = errors.New("recorded step name mismatch")
)

// NoResponseMarker is the terminal result of a dispatch that timed out
// where the workflow treats silence as an answer.
const NoResponseMarker = "no response arrived"

// Namers provide a name string.
type Namer interface {
	// Name returns the name of the workflow.
	// Workflow names double as the requestType values accepted by the
	// start API and are used to route start requests to workflows.
	Name() string
}

// Workflows execute multi-step gateway management procedures.
type Workflow interface {
	Namer

	// Run executes the workflow for one instance and returns the raw
	// terminal result payload. A workflow decides for itself whether a
	// step outcome terminates it as failed (returned as a marshaled
	// failure Response with a nil error) or is swallowed as
	// best-effort. A non-nil error means the instance could not run to
	// a terminal decision at all.
	Run(ctx context.Context, run Run) ([]byte, error)
}

// Run is the engine-provided handle a workflow instance executes against.
//
// Step is the durability boundary: the function it runs executes at most
// once per recorded step — on resume after a crash, recorded outputs are
// replayed instead of re-running the function. Anything with an
// externally-visible side effect belongs inside a Step.
type Run interface {
	// InstanceID returns the unique identifier of this workflow instance.
	InstanceID() string

	// Input returns the raw request body the instance was started with.
	Input() []byte

	// Step replays the recorded output for this step if one exists, or
	// runs fn and durably records its output before returning. A fn
	// error is not recorded; the step re-executes on resume.
	Step(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error)

	// SetStatus publishes the externally-queryable custom status.
	// It is set before a step begins, so readers see the last started
	// (not necessarily finished) step: a liveness hint, not a
	// completion guarantee.
	SetStatus(ctx context.Context, status string) error

	// SendCommand dispatches a raw command to the gateway and waits for
	// its correlated response. A timeout of zero uses the engine
	// default.
	SendCommand(ctx context.Context, rawCmd []byte, timeout time.Duration) ([]byte, error)

	// WaitUntilReady polls the device at devAddr until it wakes and
	// reports readiness, returning the raw response that indicated it.
	WaitUntilReady(ctx context.Context, devAddr string) ([]byte, error)
}

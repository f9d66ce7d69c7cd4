package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/micromdm/nanolib/log"
)

// instanceRun is the engine's workflow.Run handle for one executing
// instance. Not safe for concurrent use; a workflow runs its steps
// sequentially on a single goroutine.
type instanceRun struct {
	e          *Engine
	instanceID string
	input      []byte
	index      int // next step index
	logger     log.Logger
}

func (r *instanceRun) InstanceID() string {
	return r.instanceID
}

func (r *instanceRun) Input() []byte {
	return r.input
}

// Step replays the recorded output for the step at the current index,
// or runs fn and records its output. Recorded step names must match
// execution order: a mismatch means the workflow code changed under a
// resumed instance, which cannot be safely replayed.
func (r *instanceRun) Step(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	index := r.index
	r.index++

	rec, found, err := r.e.storage.RetrieveStepRecord(ctx, r.instanceID, index)
	if err != nil {
		return nil, fmt.Errorf("retrieving step record %d: %w", index, err)
	}
	if found {
		if rec.Name != name {
			return nil, fmt.Errorf("%w: step %d recorded %q, executing %q",
				workflow.ErrStepNameMismatch, index, rec.Name, name)
		}
		r.logger.Debug(
			logkeys.Message, "replaying step",
			logkeys.StepName, name,
		)
		return rec.Output, nil
	}

	r.logger.Debug(
		logkeys.Message, "executing step",
		logkeys.StepName, name,
	)
	output, err := fn(ctx)
	if err != nil {
		// not recorded; the step re-executes on resume
		return nil, err
	}

	err = r.e.storage.RecordStepResult(ctx, r.instanceID, &storage.StepRecord{
		Index:      index,
		Name:       name,
		Output:     output,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording step %d: %w", index, err)
	}
	return output, nil
}

func (r *instanceRun) SetStatus(ctx context.Context, status string) error {
	return r.e.storage.SetCustomStatus(ctx, r.instanceID, status)
}

func (r *instanceRun) SendCommand(ctx context.Context, rawCmd []byte, timeout time.Duration) ([]byte, error) {
	return r.e.SendAndWait(ctx, rawCmd, timeout)
}

func (r *instanceRun) WaitUntilReady(ctx context.Context, devAddr string) ([]byte, error) {
	return r.e.WaitUntilReady(ctx, devAddr)
}

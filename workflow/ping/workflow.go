// Package ping implements a gateway round-trip test workflow.
//
// It dispatches a minimal command the gateway merely echoes and returns
// whatever came back. Useful for verifying the transport and the
// correlation path end to end.
package ping

import (
	"context"
	"errors"

	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/micromdm/nanolib/log"
)

const WorkflowName = "testCommand"

type Workflow struct {
	logger log.Logger
}

type Option func(*Workflow)

func WithLogger(logger log.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func New(opts ...Option) (*Workflow, error) {
	w := &Workflow{logger: log.NopLogger}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Workflow) Name() string {
	return WorkflowName
}

func (w *Workflow) Run(ctx context.Context, run workflow.Run) ([]byte, error) {
	raw, err := run.Step(ctx, "SendPing", func(ctx context.Context) ([]byte, error) {
		cmd, err := iqrf.PingRequest()
		if err != nil {
			return nil, err
		}
		raw, err := run.SendCommand(ctx, cmd, 0)
		if errors.Is(err, workflow.ErrTimedOut) {
			// silence is a valid answer for a connectivity probe
			return []byte(workflow.NoResponseMarker), nil
		}
		return raw, err
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

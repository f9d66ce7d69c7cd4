// Package unbond implements the device unbond workflow.
//
// It waits for the target device to wake, sends the remove-bond command
// to the gateway, and clears the sensor's gateway binding in the sensor
// database.
package unbond

import (
	"context"
	"errors"
	"fmt"

	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/subsystem/sensordb/storage"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

const WorkflowName = "unbondDevice"

// custom status values published while the workflow progresses
const (
	StatusSleeping = `{"Status":"Device is Sleeping"}`
	StatusAwake    = `{"Status":"Device has woken up"}`
	StatusRemoving = `{"Status":"Removing device from GW"}`
	StatusUpdating = `{"Status":"Updating DB entry"}`
)

var ErrMissingDevAddr = errors.New("missing devAddr")

type Workflow struct {
	store    storage.Storage
	logger   log.Logger
	strictDB bool
}

type Option func(*Workflow)

func WithLogger(logger log.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithStrictDB makes a sensor database update failure fail the
// workflow. By default the gateway-side removal has already happened by
// then, so the update is best-effort and only logged.
func WithStrictDB() Option {
	return func(w *Workflow) {
		w.strictDB = true
	}
}

func New(store storage.Storage, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		store:  store,
		logger: log.NopLogger,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logkeys.WorkflowName, w.Name())
	return w, nil
}

func (w *Workflow) Name() string {
	return WorkflowName
}

func (w *Workflow) Run(ctx context.Context, run workflow.Run) ([]byte, error) {
	req, err := workflow.ParseStartRequest(run.Input())
	if err != nil {
		return nil, fmt.Errorf("parsing start request: %w", err)
	}
	if req.DevAddr == "" {
		return nil, ErrMissingDevAddr
	}

	logger := ctxlog.Logger(ctx, w.logger).With(
		logkeys.InstanceID, run.InstanceID(),
		logkeys.DeviceAddr, req.DevAddr,
	)

	if err = run.SetStatus(ctx, StatusSleeping); err != nil {
		return nil, fmt.Errorf("setting status: %w", err)
	}

	_, err = run.Step(ctx, "AwaitAwake", func(ctx context.Context) ([]byte, error) {
		return run.WaitUntilReady(ctx, req.DevAddr)
	})
	var devErr *iqrf.DeviceError
	if errors.As(err, &devErr) {
		logger.Info(
			logkeys.Message, "awaiting device",
			logkeys.Error, err,
		)
		return workflow.NewResponse(workflow.ResultError, workflow.MsgDiscoveryError, devErr.StatusStr).JSON(), nil
	} else if err != nil {
		return nil, err
	}

	if err = run.SetStatus(ctx, StatusAwake); err != nil {
		return nil, fmt.Errorf("setting status: %w", err)
	}
	if err = run.SetStatus(ctx, StatusRemoving); err != nil {
		return nil, fmt.Errorf("setting status: %w", err)
	}

	removeRaw, err := run.Step(ctx, "SendRemoveCommand", func(ctx context.Context) ([]byte, error) {
		cmd, err := iqrf.RemoveBondRequest(req.DevAddr)
		if err != nil {
			return nil, fmt.Errorf("building remove bond request: %w", err)
		}
		return run.SendCommand(ctx, cmd, 0)
	})
	if errors.Is(err, workflow.ErrTimedOut) {
		logger.Info(logkeys.Message, "remove bond timed out")
		return workflow.NewResponse(workflow.ResultError, workflow.MsgUnbondError, workflow.NoResponseMarker).JSON(), nil
	} else if err != nil {
		return nil, err
	}
	resp, err := iqrf.ParseResponse(removeRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing remove bond response: %w", err)
	}
	if errors.As(resp.Err(), &devErr) {
		logger.Info(
			logkeys.Message, "remove bond",
			logkeys.Error, devErr,
		)
		return workflow.NewResponse(workflow.ResultError, workflow.MsgUnbondError, devErr.StatusStr).JSON(), nil
	}

	if err = run.SetStatus(ctx, StatusUpdating); err != nil {
		return nil, fmt.Errorf("setting status: %w", err)
	}

	_, err = run.Step(ctx, "UpdateRecord", func(ctx context.Context) ([]byte, error) {
		return nil, w.store.ClearGatewayBinding(ctx, req.SensorID)
	})
	if err != nil {
		// the device is already removed from the gateway; failing the
		// whole workflow here would misreport the gateway state
		logger.Info(
			logkeys.Message, "clearing gateway binding",
			logkeys.SensorID, req.SensorID,
			logkeys.Error, err,
		)
		if w.strictDB {
			return workflow.NewResponse(workflow.ResultError, workflow.MsgUnbondError, err.Error()).JSON(), nil
		}
	}

	return workflow.NewResponse(workflow.ResultOK, workflow.MsgUnbondSuccess, string(removeRaw)).JSON(), nil
}

// Package engine implements the gateway command workflow engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/gw"
	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/utils/timer"
	"github.com/iqrfcloud/gwcmd/utils/uuid"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoSuchWorkflow = errors.New("no such workflow")

	// ErrInstanceNotRunning is returned when cancelling an instance
	// this engine process is not executing.
	ErrInstanceNotRunning = errors.New("instance not running")
)

func NewErrNoSuchWorkflow(name string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchWorkflow, name)
}

const (
	// DefaultCommandTimeout is how long a dispatched command waits for
	// its correlated response before giving up.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultPollInterval is the delay between device readiness probes.
	DefaultPollInterval = 10 * time.Second
)

// Engine executes workflows against an intermittently-responding gateway.
type Engine struct {
	workflowsMu sync.RWMutex
	workflows   map[string]workflow.Workflow

	storage   storage.Storage
	publisher gw.CommandPublisher
	registry  *Registry

	runsMu sync.Mutex
	runs   map[string]context.CancelFunc // instance ID -> cancel of its run

	logger log.Logger
	ider   uuid.IDer
	timers timer.Source

	commandTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCommandTimeout sets the per-command response wait window.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.commandTimeout = timeout
	}
}

// WithPollInterval sets the delay between device readiness probes.
func WithPollInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = interval
	}
}

// WithTimerSource sets the timer source. Tests use this to substitute
// manually-fired timers.
func WithTimerSource(src timer.Source) Option {
	return func(e *Engine) {
		e.timers = src
	}
}

// WithIDer sets the correlation token and instance ID generator.
func WithIDer(ider uuid.IDer) Option {
	return func(e *Engine) {
		e.ider = ider
	}
}

// New creates a new workflow engine with default configurations.
func New(store storage.Storage, publisher gw.CommandPublisher, opts ...Option) *Engine {
	engine := &Engine{
		workflows:      make(map[string]workflow.Workflow),
		storage:        store,
		publisher:      publisher,
		registry:       NewRegistry(),
		runs:           make(map[string]context.CancelFunc),
		logger:         log.NopLogger,
		ider:           uuid.NewUUID(),
		timers:         timer.NewReal(),
		commandTimeout: DefaultCommandTimeout,
		pollInterval:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// StartWorkflow starts a new instance of workflow name with the raw
// start request input and returns the new instance ID. The instance
// executes on its own goroutine; the returned ID is usable for status
// queries immediately.
func (e *Engine) StartWorkflow(ctx context.Context, name string, input []byte) (string, error) {
	w := e.Workflow(name)
	if w == nil {
		return "", NewErrNoSuchWorkflow(name)
	}

	instanceID := e.ider.ID()
	err := e.storage.CreateInstance(ctx, &storage.Instance{
		InstanceID:   instanceID,
		WorkflowName: name,
		Context:      input,
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("creating instance: %w", err)
	}

	ctxlog.Logger(ctx, e.logger).Debug(
		logkeys.Message, "starting workflow",
		logkeys.WorkflowName, name,
		logkeys.InstanceID, instanceID,
	)

	e.startRun(w, instanceID, input)
	return instanceID, nil
}

// startRun launches the instance goroutine and tracks its cancel func.
func (e *Engine) startRun(w workflow.Workflow, instanceID string, input []byte) {
	runCtx, cancel := context.WithCancel(context.Background())
	e.runsMu.Lock()
	e.runs[instanceID] = cancel
	e.runsMu.Unlock()
	go func() {
		defer func() {
			cancel()
			e.runsMu.Lock()
			delete(e.runs, instanceID)
			e.runsMu.Unlock()
		}()
		e.runInstance(runCtx, w, instanceID, input)
	}()
}

// runInstance executes one workflow instance to its terminal result and
// records it. The terminal write uses a fresh context so a cancelled
// instance still lands its result.
func (e *Engine) runInstance(ctx context.Context, w workflow.Workflow, instanceID string, input []byte) {
	logger := e.logger.With(
		logkeys.WorkflowName, w.Name(),
		logkeys.InstanceID, instanceID,
	)

	result, err := w.Run(ctx, &instanceRun{
		e:          e,
		instanceID: instanceID,
		input:      input,
		logger:     logger,
	})
	if err != nil {
		logger.Info(
			logkeys.Message, "workflow run",
			logkeys.Error, err,
		)
		msg := workflow.MsgWorkflowError
		if errors.Is(err, context.Canceled) {
			msg = workflow.MsgCanceled
		}
		result = workflow.NewResponse(workflow.ResultError, msg, err.Error()).JSON()
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = e.storage.RecordInstanceResult(recordCtx, instanceID, result, time.Now().UTC()); err != nil {
		logger.Info(
			logkeys.Message, "recording instance result",
			logkeys.Error, err,
		)
	}
}

// CancelInstance cancels a running workflow instance.
func (e *Engine) CancelInstance(ctx context.Context, instanceID string) error {
	e.runsMu.Lock()
	cancel, ok := e.runs[instanceID]
	e.runsMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotRunning, instanceID)
	}
	cancel()
	ctxlog.Logger(ctx, e.logger).Debug(
		logkeys.Message, "cancelled instance",
		logkeys.InstanceID, instanceID,
	)
	return nil
}

// InstanceStatus fetches the stored state of an instance.
func (e *Engine) InstanceStatus(ctx context.Context, instanceID string) (*storage.Instance, error) {
	return e.storage.RetrieveInstance(ctx, instanceID)
}

// ResumeAll restarts every incomplete stored instance. Resumed
// instances replay their recorded steps and continue from the first
// unrecorded one. Instances already running in this process are
// skipped.
func (e *Engine) ResumeAll(ctx context.Context) error {
	insts, err := e.storage.RetrieveIncompleteInstances(ctx)
	if err != nil {
		return fmt.Errorf("retrieving incomplete instances: %w", err)
	}
	logger := ctxlog.Logger(ctx, e.logger)
	for _, inst := range insts {
		e.runsMu.Lock()
		_, running := e.runs[inst.InstanceID]
		e.runsMu.Unlock()
		if running {
			continue
		}
		w := e.Workflow(inst.WorkflowName)
		if w == nil {
			logger.Info(
				logkeys.Message, "resuming instance",
				logkeys.InstanceID, inst.InstanceID,
				logkeys.Error, NewErrNoSuchWorkflow(inst.WorkflowName),
			)
			continue
		}
		logger.Debug(
			logkeys.Message, "resuming instance",
			logkeys.WorkflowName, inst.WorkflowName,
			logkeys.InstanceID, inst.InstanceID,
		)
		e.startRun(w, inst.InstanceID, inst.Context)
	}
	return nil
}

// GatewayResponseEvent routes a raw inbound gateway message to the wait
// registered for its correlation token. Malformed messages and
// responses nothing is waiting for are logged and dropped; the channel
// is at-least-once and duplicates are expected.
func (e *Engine) GatewayResponseEvent(ctx context.Context, raw []byte) error {
	logger := ctxlog.Logger(ctx, e.logger)
	resp, err := iqrf.ParseResponse(raw)
	if err != nil {
		logger.Info(
			logkeys.Message, "parsing gateway response",
			logkeys.Error, err,
		)
		return nil
	}
	delivered := e.registry.Deliver(resp.MsgID, raw)
	logger.Debug(
		logkeys.Message, "gateway response",
		logkeys.MsgID, resp.MsgID,
		"delivered", delivered,
	)
	return nil
}

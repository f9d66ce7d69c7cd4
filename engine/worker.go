package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/logkeys"

	"github.com/micromdm/nanolib/log"
)

const DefaultDuration = time.Minute * 5
const DefaultRetentionDuration = time.Hour * 24 * 7

// InstanceResumer resumes incomplete workflow instances.
type InstanceResumer interface {
	ResumeAll(ctx context.Context) error
}

// Worker periodically resumes dropped instances and purges completed
// instances past their retention.
type Worker struct {
	resumer InstanceResumer
	storage storage.Storage
	logger  log.Logger

	// duration is the interval at which the worker wakes up.
	duration time.Duration

	// retention is how long completed instances are kept before
	// purging. Zero disables purging.
	retention time.Duration
}

type WorkerOption func(w *Worker)

func WithWorkerLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerDuration configures the polling interval for the worker.
func WithWorkerDuration(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.duration = d
	}
}

// WithWorkerRetention configures how long completed instances are kept.
func WithWorkerRetention(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retention = d
	}
}

func NewWorker(resumer InstanceResumer, storage storage.Storage, opts ...WorkerOption) *Worker {
	w := &Worker{
		resumer:   resumer,
		storage:   storage,
		logger:    log.NopLogger,
		duration:  DefaultDuration,
		retention: DefaultRetentionDuration,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce runs the processes of the worker and logs errors.
func (w *Worker) RunOnce(ctx context.Context) error {
	if err := w.resumer.ResumeAll(ctx); err != nil {
		return logAndError(err, w.logger, "resuming instances")
	}
	if w.retention > 0 {
		if err := w.purgeCompleted(ctx); err != nil {
			return logAndError(err, w.logger, "purging completed instances")
		}
	}
	return nil
}

// Run starts and runs the worker forever on an interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug(logkeys.Message, "starting worker", "duration", w.duration)

	ticker := time.NewTicker(w.duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// purgeCompleted deletes completed instances older than the retention.
func (w *Worker) purgeCompleted(ctx context.Context) error {
	ids, err := w.storage.RetrieveCompletedBefore(ctx, time.Now().UTC().Add(-w.retention))
	if err != nil {
		return fmt.Errorf("retrieving completed instances: %w", err)
	}
	for _, id := range ids {
		if err = w.storage.DeleteInstance(ctx, id); err != nil {
			return fmt.Errorf("deleting instance %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		w.logger.Debug(
			logkeys.Message, "purged completed instances",
			logkeys.GenericCount, len(ids),
		)
	}
	return nil
}

func logAndError(err error, logger log.Logger, msg string) error {
	logger.Info(
		logkeys.Message, msg,
		logkeys.Error, err,
	)
	return fmt.Errorf("%s: %w", msg, err)
}

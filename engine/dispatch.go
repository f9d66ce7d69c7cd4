package engine

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// SendAndWait publishes rawCmd to the gateway and waits up to timeout
// for the correlated response payload. The command's placeholder token
// is substituted with a freshly generated one; each call is a new
// dispatch with a new token, including retries of the same logical
// command. A timeout returns workflow.ErrTimedOut.
func (e *Engine) SendAndWait(ctx context.Context, rawCmd []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = e.commandTimeout
	}
	token := e.ider.ID()
	rawCmd = bytes.ReplaceAll(rawCmd, []byte(iqrf.MsgIDPlaceholder), []byte(token))

	pw, err := e.registry.Register(token)
	if err != nil {
		return nil, fmt.Errorf("registering wait: %w", err)
	}
	defer e.registry.Deregister(token)

	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.MsgID, token)

	// The channel is at-least-once and lossy both ways: a failed
	// publish and a dropped response look identical to the waiter, so
	// a publish error rides the same timeout path.
	if err = e.publisher.Publish(ctx, rawCmd); err != nil {
		logger.Info(
			logkeys.Message, "publishing command",
			logkeys.Error, err,
		)
	} else {
		logger.Debug(logkeys.Message, "published command")
	}

	t := e.timers.NewTimer(timeout)
	defer t.Stop()

	select {
	case payload := <-pw.C():
		return payload, nil
	case <-t.C():
		// Deliver may have won the race after the timer fired but
		// before we deregistered; the payload is then already on the
		// channel and the dispatch succeeded.
		if !e.registry.Deregister(token) {
			select {
			case payload := <-pw.C():
				return payload, nil
			default:
			}
		}
		logger.Debug(logkeys.Message, "command timed out")
		return nil, workflow.ErrTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

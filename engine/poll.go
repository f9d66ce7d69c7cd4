package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// WaitUntilReady polls the device at devAddr with enumerate commands
// until it reports readiness, returning the raw response that did. A
// dispatch timeout or an "info missing" response means the device is
// still asleep; both wait out the poll interval and probe again. The
// loop is unbounded: callers bound it through ctx. Any other device
// error ends the poll immediately.
func (e *Engine) WaitUntilReady(ctx context.Context, devAddr string) ([]byte, error) {
	cmd, err := iqrf.EnumerateRequest(devAddr)
	if err != nil {
		return nil, fmt.Errorf("building enumerate request: %w", err)
	}

	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.DeviceAddr, devAddr)

	for {
		raw, err := e.SendAndWait(ctx, cmd, 0)
		if err == nil {
			resp, parseErr := iqrf.ParseResponse(raw)
			if parseErr != nil {
				return nil, fmt.Errorf("parsing enumerate response: %w", parseErr)
			}
			if !resp.InfoMissing() {
				if devErr := resp.Err(); devErr != nil {
					return raw, devErr
				}
				logger.Debug(logkeys.Message, "device ready")
				return raw, nil
			}
			logger.Debug(logkeys.Message, "device still asleep")
		} else if errors.Is(err, workflow.ErrTimedOut) {
			logger.Debug(logkeys.Message, "enumerate timed out")
		} else {
			return nil, err
		}

		t := e.timers.NewTimer(e.pollInterval)
		select {
		case <-t.C():
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
}

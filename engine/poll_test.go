package engine

import (
	"context"
	"testing"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage/inmem"
	"github.com/iqrfcloud/gwcmd/gw/gwtest"
	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/utils/timer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUntilReady(t *testing.T) {
	g := gwtest.New(nil)
	src := timer.NewManual()
	e := New(inmem.New(), g, WithTimerSource(src))
	g.SetReceiver(e)

	g.Enqueue(
		iqrf.Data{StatusStr: iqrf.StatusStrInfoMissing},
		iqrf.Data{Status: 0},
	)

	done := make(chan struct{})
	defer close(done)
	pumpTimers(src, done, func(d time.Duration) bool {
		return d == DefaultPollInterval
	})

	raw, err := e.WaitUntilReady(context.Background(), "3")
	require.NoError(t, err)

	resp, err := iqrf.ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Data.Status)
	assert.Equal(t, 2, g.PublishCount())

	// both probes were enumerate commands for the device
	for _, p := range g.Published() {
		assert.Contains(t, string(p), iqrf.MTypeEnumerate)
	}
}

func TestWaitUntilReadyDeviceError(t *testing.T) {
	g := gwtest.New(nil)
	e := New(inmem.New(), g)
	g.SetReceiver(e)

	g.Enqueue(iqrf.Data{Status: 8, StatusStr: "ERROR_NADR"})

	_, err := e.WaitUntilReady(context.Background(), "3")
	var devErr *iqrf.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 8, devErr.Status)

	// an explicit device error ends the poll, no retry
	assert.Equal(t, 1, g.PublishCount())
}

func TestWaitUntilReadyRetriesAfterTimeout(t *testing.T) {
	g := gwtest.New(nil)
	src := timer.NewManual()
	e := New(inmem.New(), g, WithTimerSource(src))
	g.SetReceiver(e)

	// the queue is empty for the first probe: it times out

	done := make(chan struct{})
	defer close(done)
	firstTimeout := true
	pumpTimers(src, done, func(d time.Duration) bool {
		if d == DefaultPollInterval {
			// the retry probe should find an answer waiting
			g.Enqueue(iqrf.Data{Status: 0})
			return true
		}
		// fire only the first probe's wait window; the retry's
		// response resolves it before its window matters
		if firstTimeout {
			firstTimeout = false
			return true
		}
		return false
	})

	raw, err := e.WaitUntilReady(context.Background(), "3")
	require.NoError(t, err)

	resp, err := iqrf.ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Data.Status)
	assert.Equal(t, 2, g.PublishCount())
}

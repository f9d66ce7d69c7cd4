package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage/inmem"
	"github.com/iqrfcloud/gwcmd/gw/gwtest"
	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/utils/timer"
	"github.com/iqrfcloud/gwcmd/utils/uuid"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndWaitSubstitutesToken(t *testing.T) {
	g := gwtest.New(nil)
	e := New(inmem.New(), g, WithIDer(uuid.NewStaticIDs("token-abc")))
	g.SetReceiver(e)
	g.Enqueue(iqrf.Data{Status: 0})

	cmd, err := iqrf.PingRequest()
	require.NoError(t, err)

	raw, err := e.SendAndWait(context.Background(), cmd, time.Second)
	require.NoError(t, err)

	resp, err := iqrf.ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "token-abc", resp.MsgID)

	// the published command carried the substituted token
	var req iqrf.Request
	require.NoError(t, json.Unmarshal(g.Published()[0], &req))
	assert.Equal(t, "token-abc", req.MsgID)
}

func TestSendAndWaitTimeout(t *testing.T) {
	g := gwtest.New(nil) // silent gateway
	src := timer.NewManual()
	e := New(inmem.New(), g, WithTimerSource(src))
	g.SetReceiver(e)

	cmd, err := iqrf.PingRequest()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := e.SendAndWait(context.Background(), cmd, 0)
		errCh <- err
	}()

	mt := <-src.Created()
	assert.Equal(t, DefaultCommandTimeout, mt.Duration())
	mt.Fire()

	assert.ErrorIs(t, <-errCh, workflow.ErrTimedOut)
}

func TestSendAndWaitContextCancel(t *testing.T) {
	g := gwtest.New(nil)
	src := timer.NewManual()
	e := New(inmem.New(), g, WithTimerSource(src))
	g.SetReceiver(e)

	cmd, err := iqrf.PingRequest()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.SendAndWait(ctx, cmd, 0)
		errCh <- err
	}()

	<-src.Created() // dispatch is waiting
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
}

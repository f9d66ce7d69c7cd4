package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/engine/storage/inmem"
	"github.com/iqrfcloud/gwcmd/gw/gwtest"
	"github.com/iqrfcloud/gwcmd/iqrf"
	sdbinmem "github.com/iqrfcloud/gwcmd/subsystem/sensordb/storage/inmem"
	"github.com/iqrfcloud/gwcmd/utils/timer"
	"github.com/iqrfcloud/gwcmd/workflow"
	"github.com/iqrfcloud/gwcmd/workflow/ping"
	"github.com/iqrfcloud/gwcmd/workflow/unbond"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusStore wraps a storage backend and records custom status writes.
type statusStore struct {
	storage.Storage

	mu       sync.Mutex
	statuses []string
}

func (s *statusStore) SetCustomStatus(ctx context.Context, instanceID, status string) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
	return s.Storage.SetCustomStatus(ctx, instanceID, status)
}

func (s *statusStore) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

// pumpTimers fires every manual timer whose duration fire returns true
// for, until done is closed. Timers the pump leaves alone resolve
// through response delivery instead.
func pumpTimers(src *timer.Manual, done <-chan struct{}, fire func(d time.Duration) bool) {
	go func() {
		for {
			select {
			case t := <-src.Created():
				if fire(t.Duration()) {
					t.Fire()
				}
			case <-done:
				return
			}
		}
	}()
}

func waitDone(t *testing.T, e *Engine, instanceID string) *storage.Instance {
	t.Helper()
	var inst *storage.Instance
	require.Eventually(t, func() bool {
		var err error
		inst, err = e.InstanceStatus(context.Background(), instanceID)
		return err == nil && inst.Done
	}, 5*time.Second, 10*time.Millisecond)
	return inst
}

func TestPingTimeout(t *testing.T) {
	store := inmem.New()
	g := gwtest.New(nil) // empty queue: the gateway stays silent
	src := timer.NewManual()
	e := New(store, g, WithTimerSource(src))
	g.SetReceiver(e)

	w, err := ping.New()
	require.NoError(t, err)
	require.NoError(t, e.RegisterWorkflow(w))

	done := make(chan struct{})
	defer close(done)
	pumpTimers(src, done, func(d time.Duration) bool {
		return d == DefaultCommandTimeout
	})

	instanceID, err := e.StartWorkflow(context.Background(), ping.WorkflowName, []byte(`{"requestType":"testCommand"}`))
	require.NoError(t, err)

	inst := waitDone(t, e, instanceID)
	assert.Equal(t, workflow.NoResponseMarker, string(inst.Result))
	assert.Equal(t, 1, g.PublishCount())
}

func TestPingRoundTrip(t *testing.T) {
	store := inmem.New()
	g := gwtest.New(nil)
	e := New(store, g)
	g.SetReceiver(e)

	w, err := ping.New()
	require.NoError(t, err)
	require.NoError(t, e.RegisterWorkflow(w))

	g.Enqueue(iqrf.Data{Status: 0})

	instanceID, err := e.StartWorkflow(context.Background(), ping.WorkflowName, []byte(`{"requestType":"testCommand"}`))
	require.NoError(t, err)

	inst := waitDone(t, e, instanceID)

	resp, err := iqrf.ParseResponse(inst.Result)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Data.Status)
	// the echoed correlation token is a real ID, not the placeholder
	assert.NotEqual(t, iqrf.MsgIDPlaceholder, resp.MsgID)
}

func TestUnbondHappyPath(t *testing.T) {
	store := &statusStore{Storage: inmem.New()}
	sdb := sdbinmem.New()
	g := gwtest.New(nil)
	src := timer.NewManual()
	e := New(store, g, WithTimerSource(src))
	g.SetReceiver(e)

	w, err := unbond.New(sdb)
	require.NoError(t, err)
	require.NoError(t, e.RegisterWorkflow(w))

	// the device sleeps through the first two probes, wakes on the
	// third, then accepts the remove command
	g.Enqueue(
		iqrf.Data{StatusStr: iqrf.StatusStrInfoMissing},
		iqrf.Data{StatusStr: iqrf.StatusStrInfoMissing},
		iqrf.Data{Status: 0},
		iqrf.Data{Status: 0, Rsp: json.RawMessage(`{"deviceAddr":3}`)},
	)

	done := make(chan struct{})
	defer close(done)
	pumpTimers(src, done, func(d time.Duration) bool {
		return d == DefaultPollInterval
	})

	instanceID, err := e.StartWorkflow(
		context.Background(),
		unbond.WorkflowName,
		[]byte(`{"requestType":"unbondDevice","devAddr":"3","sensorID":"sensor-9"}`),
	)
	require.NoError(t, err)

	inst := waitDone(t, e, instanceID)

	var resp workflow.Response
	require.NoError(t, json.Unmarshal(inst.Result, &resp))
	assert.Equal(t, workflow.ResultOK, resp.Result)
	assert.Equal(t, workflow.MsgUnbondSuccess, resp.ResultMessage)

	assert.Equal(t, []string{
		unbond.StatusSleeping,
		unbond.StatusAwake,
		unbond.StatusRemoving,
		unbond.StatusUpdating,
	}, store.recorded())

	assert.Equal(t, []string{"sensor-9"}, sdb.Cleared())
	assert.Equal(t, 4, g.PublishCount())
}

func TestUnbondDeviceBusy(t *testing.T) {
	store := inmem.New()
	sdb := sdbinmem.New()
	g := gwtest.New(nil)
	e := New(store, g)
	g.SetReceiver(e)

	w, err := unbond.New(sdb)
	require.NoError(t, err)
	require.NoError(t, e.RegisterWorkflow(w))

	// non-zero status other than "asleep" fails the workflow, no retries
	g.Enqueue(iqrf.Data{Status: 5, StatusStr: "device busy"})

	instanceID, err := e.StartWorkflow(
		context.Background(),
		unbond.WorkflowName,
		[]byte(`{"requestType":"unbondDevice","devAddr":"3","sensorID":"sensor-9"}`),
	)
	require.NoError(t, err)

	inst := waitDone(t, e, instanceID)

	var resp workflow.Response
	require.NoError(t, json.Unmarshal(inst.Result, &resp))
	assert.Equal(t, workflow.ResultError, resp.Result)
	assert.Equal(t, workflow.MsgDiscoveryError, resp.ResultMessage)
	assert.Equal(t, "device busy", resp.GWLogMessage)

	// the gateway was never told to remove and the DB never touched
	assert.Equal(t, 1, g.PublishCount())
	assert.Empty(t, sdb.Cleared())
}

func TestUnbondRemoveBondBusy(t *testing.T) {
	store := inmem.New()
	sdb := sdbinmem.New()
	g := gwtest.New(nil)
	e := New(store, g)
	g.SetReceiver(e)

	w, err := unbond.New(sdb)
	require.NoError(t, err)
	require.NoError(t, e.RegisterWorkflow(w))

	// the device is awake, but the remove command itself is refused
	g.Enqueue(
		iqrf.Data{Status: 0},
		iqrf.Data{Status: 5, StatusStr: "busy"},
	)

	instanceID, err := e.StartWorkflow(
		context.Background(),
		unbond.WorkflowName,
		[]byte(`{"requestType":"unbondDevice","devAddr":"3","sensorID":"sensor-9"}`),
	)
	require.NoError(t, err)

	inst := waitDone(t, e, instanceID)

	var resp workflow.Response
	require.NoError(t, json.Unmarshal(inst.Result, &resp))
	assert.Equal(t, workflow.ResultError, resp.Result)
	assert.Equal(t, workflow.MsgUnbondError, resp.ResultMessage)
	assert.Equal(t, "busy", resp.GWLogMessage)

	// one probe, one refused remove; the DB update never happens
	assert.Equal(t, 2, g.PublishCount())
	assert.Empty(t, sdb.Cleared())
}

func TestResumeReplaysRecordedSteps(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	g := gwtest.New(nil)
	e := New(store, g)
	g.SetReceiver(e)

	w, err := ping.New()
	require.NoError(t, err)
	require.NoError(t, e.RegisterWorkflow(w))

	// simulate an instance that dispatched its command and crashed
	// before landing the terminal result
	require.NoError(t, store.CreateInstance(ctx, &storage.Instance{
		InstanceID:   "resumed-1",
		WorkflowName: ping.WorkflowName,
		Context:      []byte(`{"requestType":"testCommand"}`),
		StartedAt:    time.Now().UTC(),
	}))
	require.NoError(t, store.RecordStepResult(ctx, "resumed-1", &storage.StepRecord{
		Index:      0,
		Name:       "SendPing",
		Output:     []byte(`{"msgId":"recorded","data":{"status":0}}`),
		RecordedAt: time.Now().UTC(),
	}))

	require.NoError(t, e.ResumeAll(ctx))

	inst := waitDone(t, e, "resumed-1")
	assert.JSONEq(t, `{"msgId":"recorded","data":{"status":0}}`, string(inst.Result))

	// the recorded step must not re-dispatch its command
	assert.Equal(t, 0, g.PublishCount())
}

func TestStartUnknownWorkflow(t *testing.T) {
	e := New(inmem.New(), gwtest.New(nil))
	_, err := e.StartWorkflow(context.Background(), "bogus", nil)
	assert.ErrorIs(t, err, ErrNoSuchWorkflow)
}

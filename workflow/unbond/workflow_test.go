package unbond

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iqrfcloud/gwcmd/iqrf"
	"github.com/iqrfcloud/gwcmd/workflow"
)

// scriptedRun is a workflow.Run with canned dispatch outcomes.
// Steps execute directly with no replay.
type scriptedRun struct {
	input []byte

	readyRaw []byte
	readyErr error

	sendRaw []byte
	sendErr error

	statuses []string
}

func (r *scriptedRun) InstanceID() string { return "test-inst" }
func (r *scriptedRun) Input() []byte      { return r.input }

func (r *scriptedRun) Step(ctx context.Context, _ string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	return fn(ctx)
}

func (r *scriptedRun) SetStatus(_ context.Context, status string) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *scriptedRun) SendCommand(_ context.Context, _ []byte, _ time.Duration) ([]byte, error) {
	return r.sendRaw, r.sendErr
}

func (r *scriptedRun) WaitUntilReady(_ context.Context, _ string) ([]byte, error) {
	return r.readyRaw, r.readyErr
}

// recordingDB records cleared sensor IDs and optionally fails.
type recordingDB struct {
	cleared []string
	err     error
}

func (db *recordingDB) ClearGatewayBinding(_ context.Context, sensorID string) error {
	db.cleared = append(db.cleared, sensorID)
	return db.err
}

const startInput = `{"requestType":"unbondDevice","devAddr":"3","sensorID":"s-1"}`

func runResponse(t *testing.T, raw []byte) *workflow.Response {
	t.Helper()
	resp := new(workflow.Response)
	if err := json.Unmarshal(raw, resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestRunMissingDevAddr(t *testing.T) {
	w, err := New(new(recordingDB))
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{input: []byte(`{"requestType":"unbondDevice"}`)}
	_, err = w.Run(context.Background(), run)
	if !errors.Is(err, ErrMissingDevAddr) {
		t.Errorf("expected ErrMissingDevAddr; got: %v", err)
	}
}

func TestRunDeviceErrorWhileWaiting(t *testing.T) {
	w, err := New(new(recordingDB))
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{
		input:    []byte(startInput),
		readyErr: &iqrf.DeviceError{Status: 8, StatusStr: "ERROR_NADR"},
	}
	raw, err := w.Run(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	resp := runResponse(t, raw)
	if have, want := resp.Result, workflow.ResultError; have != want {
		t.Errorf("result: have: %v, want: %v", have, want)
	}
	if have, want := resp.ResultMessage, workflow.MsgDiscoveryError; have != want {
		t.Errorf("result message: have: %v, want: %v", have, want)
	}
	if have, want := resp.GWLogMessage, "ERROR_NADR"; have != want {
		t.Errorf("gw log message: have: %v, want: %v", have, want)
	}
}

func TestRunRemoveTimedOut(t *testing.T) {
	w, err := New(new(recordingDB))
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{
		input:    []byte(startInput),
		readyRaw: []byte(`{"msgId":"m1","data":{"status":0}}`),
		sendErr:  workflow.ErrTimedOut,
	}
	raw, err := w.Run(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	resp := runResponse(t, raw)
	if have, want := resp.ResultMessage, workflow.MsgUnbondError; have != want {
		t.Errorf("result message: have: %v, want: %v", have, want)
	}
	if have, want := resp.GWLogMessage, workflow.NoResponseMarker; have != want {
		t.Errorf("gw log message: have: %v, want: %v", have, want)
	}
}

func TestRunRemoveDeviceError(t *testing.T) {
	db := new(recordingDB)
	w, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{
		input:    []byte(startInput),
		readyRaw: []byte(`{"msgId":"m1","data":{"status":0}}`),
		sendRaw:  []byte(`{"msgId":"m2","data":{"status":5,"statusStr":"busy"}}`),
	}
	raw, err := w.Run(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	resp := runResponse(t, raw)
	if have, want := resp.Result, workflow.ResultError; have != want {
		t.Errorf("result: have: %v, want: %v", have, want)
	}
	if have, want := resp.ResultMessage, workflow.MsgUnbondError; have != want {
		t.Errorf("result message: have: %v, want: %v", have, want)
	}
	if have, want := resp.GWLogMessage, "busy"; have != want {
		t.Errorf("gw log message: have: %v, want: %v", have, want)
	}
	if len(db.cleared) != 0 {
		t.Errorf("cleared: %v", db.cleared)
	}
}

func TestRunSuccess(t *testing.T) {
	db := new(recordingDB)
	w, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{
		input:    []byte(startInput),
		readyRaw: []byte(`{"msgId":"m1","data":{"status":0}}`),
		sendRaw:  []byte(`{"msgId":"m2","data":{"status":0}}`),
	}
	raw, err := w.Run(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	resp := runResponse(t, raw)
	if have, want := resp.Result, workflow.ResultOK; have != want {
		t.Errorf("result: have: %v, want: %v", have, want)
	}
	if have, want := resp.ResultMessage, workflow.MsgUnbondSuccess; have != want {
		t.Errorf("result message: have: %v, want: %v", have, want)
	}
	if len(db.cleared) != 1 || db.cleared[0] != "s-1" {
		t.Errorf("cleared: %v", db.cleared)
	}
	wantStatuses := []string{StatusSleeping, StatusAwake, StatusRemoving, StatusUpdating}
	if len(run.statuses) != len(wantStatuses) {
		t.Fatalf("statuses: %v", run.statuses)
	}
	for i, want := range wantStatuses {
		if run.statuses[i] != want {
			t.Errorf("status %d: have: %v, want: %v", i, run.statuses[i], want)
		}
	}
}

func TestRunDBErrorBestEffort(t *testing.T) {
	db := &recordingDB{err: errors.New("db down")}
	w, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{
		input:    []byte(startInput),
		readyRaw: []byte(`{"msgId":"m1","data":{"status":0}}`),
		sendRaw:  []byte(`{"msgId":"m2","data":{"status":0}}`),
	}
	raw, err := w.Run(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	// the gateway removal already happened; default is to report it
	if have, want := runResponse(t, raw).Result, workflow.ResultOK; have != want {
		t.Errorf("result: have: %v, want: %v", have, want)
	}
}

func TestRunDBErrorStrict(t *testing.T) {
	db := &recordingDB{err: errors.New("db down")}
	w, err := New(db, WithStrictDB())
	if err != nil {
		t.Fatal(err)
	}
	run := &scriptedRun{
		input:    []byte(startInput),
		readyRaw: []byte(`{"msgId":"m1","data":{"status":0}}`),
		sendRaw:  []byte(`{"msgId":"m2","data":{"status":0}}`),
	}
	raw, err := w.Run(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	resp := runResponse(t, raw)
	if have, want := resp.Result, workflow.ResultError; have != want {
		t.Errorf("result: have: %v, want: %v", have, want)
	}
	if have, want := resp.ResultMessage, workflow.MsgUnbondError; have != want {
		t.Errorf("result message: have: %v, want: %v", have, want)
	}
}

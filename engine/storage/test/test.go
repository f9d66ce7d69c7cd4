// Package test contains a conformance test suite for workflow engine storage backends.
package test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage"
)

// TestEngineStorage runs the storage backend conformance tests against
// backends created with newStorage.
func TestEngineStorage(t *testing.T, newStorage func() storage.Storage) {
	s := newStorage()

	t.Run("instances", func(t *testing.T) {
		testInstances(t, s)
	})

	t.Run("steps", func(t *testing.T) {
		testSteps(t, s)
	})

	t.Run("completion", func(t *testing.T) {
		testCompletion(t, newStorage())
	})
}

func testInstances(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	if err := s.CreateInstance(ctx, nil); err == nil {
		t.Error("expected error for nil instance")
	}

	if _, err := s.RetrieveInstance(ctx, "no-such-id"); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound; got: %v", err)
	}

	inst := &storage.Instance{
		InstanceID:   "inst-1",
		WorkflowName: "unbondDevice",
		Context:      []byte(`{"DevAddr":"3"}`),
		StartedAt:    time.Now().UTC(),
	}
	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("creating instance: %v", err)
	}
	if err := s.CreateInstance(ctx, inst); !errors.Is(err, storage.ErrInstanceExists) {
		t.Errorf("expected ErrInstanceExists; got: %v", err)
	}

	got, err := s.RetrieveInstance(ctx, inst.InstanceID)
	if err != nil {
		t.Fatalf("retrieving instance: %v", err)
	}
	if have, want := got.WorkflowName, inst.WorkflowName; have != want {
		t.Errorf("workflow name: have: %v, want: %v", have, want)
	}
	if !bytes.Equal(got.Context, inst.Context) {
		t.Errorf("context: have: %s, want: %s", got.Context, inst.Context)
	}
	if got.Done {
		t.Error("new instance should not be done")
	}

	if err = s.SetCustomStatus(ctx, inst.InstanceID, `{"Status":"Device is Sleeping"}`); err != nil {
		t.Fatalf("setting custom status: %v", err)
	}
	if err = s.SetCustomStatus(ctx, "no-such-id", "x"); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound; got: %v", err)
	}
	got, err = s.RetrieveInstance(ctx, inst.InstanceID)
	if err != nil {
		t.Fatalf("retrieving instance: %v", err)
	}
	if have, want := got.CustomStatus, `{"Status":"Device is Sleeping"}`; have != want {
		t.Errorf("custom status: have: %v, want: %v", have, want)
	}
}

func testSteps(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	inst := &storage.Instance{
		InstanceID:   "inst-steps",
		WorkflowName: "testCommand",
		StartedAt:    time.Now().UTC(),
	}
	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("creating instance: %v", err)
	}

	if _, found, err := s.RetrieveStepRecord(ctx, inst.InstanceID, 0); err != nil {
		t.Fatalf("retrieving absent step: %v", err)
	} else if found {
		t.Error("step 0 should not be found yet")
	}

	sr := &storage.StepRecord{
		Index:      0,
		Name:       "SendPing",
		Output:     []byte(`{"mType":"iqrfEmbedOs_Read"}`),
		RecordedAt: time.Now().UTC(),
	}
	if err := s.RecordStepResult(ctx, "no-such-id", sr); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound; got: %v", err)
	}
	if err := s.RecordStepResult(ctx, inst.InstanceID, sr); err != nil {
		t.Fatalf("recording step: %v", err)
	}
	if err := s.RecordStepResult(ctx, inst.InstanceID, sr); !errors.Is(err, storage.ErrStepAlreadyRecorded) {
		t.Errorf("expected ErrStepAlreadyRecorded; got: %v", err)
	}

	got, found, err := s.RetrieveStepRecord(ctx, inst.InstanceID, 0)
	if err != nil {
		t.Fatalf("retrieving step: %v", err)
	}
	if !found {
		t.Fatal("step 0 should be found")
	}
	if have, want := got.Name, sr.Name; have != want {
		t.Errorf("step name: have: %v, want: %v", have, want)
	}
	if !bytes.Equal(got.Output, sr.Output) {
		t.Errorf("step output: have: %s, want: %s", got.Output, sr.Output)
	}
}

func testCompletion(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	// membership (not count) assertions: backends may share state with
	// other subtests through the same underlying store
	incompleteIDs := func() map[string]bool {
		t.Helper()
		insts, err := s.RetrieveIncompleteInstances(ctx)
		if err != nil {
			t.Fatalf("retrieving incomplete: %v", err)
		}
		ids := make(map[string]bool)
		for _, inst := range insts {
			ids[inst.InstanceID] = true
		}
		return ids
	}

	for _, id := range []string{"inst-a", "inst-b"} {
		err := s.CreateInstance(ctx, &storage.Instance{
			InstanceID:   id,
			WorkflowName: "unbondDevice",
			StartedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("creating instance %s: %v", id, err)
		}
	}

	ids := incompleteIDs()
	if !ids["inst-a"] || !ids["inst-b"] {
		t.Errorf("incomplete: %v", ids)
	}

	completedAt := time.Now().UTC()
	if err := s.RecordInstanceResult(ctx, "inst-a", []byte(`{"result":"OK"}`), completedAt); err != nil {
		t.Fatalf("recording result: %v", err)
	}
	if err := s.RecordInstanceResult(ctx, "no-such-id", nil, completedAt); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound; got: %v", err)
	}

	got, err := s.RetrieveInstance(ctx, "inst-a")
	if err != nil {
		t.Fatalf("retrieving instance: %v", err)
	}
	if !got.Done {
		t.Error("instance should be done")
	}
	if !bytes.Equal(got.Result, []byte(`{"result":"OK"}`)) {
		t.Errorf("result: have: %s", got.Result)
	}

	ids = incompleteIDs()
	if ids["inst-a"] {
		t.Error("inst-a should no longer be incomplete")
	}
	if !ids["inst-b"] {
		t.Error("inst-b should still be incomplete")
	}

	completedIDs := func(before time.Time) map[string]bool {
		t.Helper()
		completed, err := s.RetrieveCompletedBefore(ctx, before)
		if err != nil {
			t.Fatalf("retrieving completed: %v", err)
		}
		ids := make(map[string]bool)
		for _, id := range completed {
			ids[id] = true
		}
		return ids
	}

	if cids := completedIDs(completedAt.Add(time.Minute)); !cids["inst-a"] {
		t.Errorf("completed: %v", cids)
	}
	if cids := completedIDs(completedAt.Add(-time.Minute)); cids["inst-a"] {
		t.Errorf("completed too early: %v", cids)
	}

	if err = s.DeleteInstance(ctx, "inst-a"); err != nil {
		t.Fatalf("deleting instance: %v", err)
	}
	if _, err = s.RetrieveInstance(ctx, "inst-a"); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound after delete; got: %v", err)
	}
}

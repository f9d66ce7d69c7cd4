package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/utils/kv"
)

// key suffixes for the instance bucket
const (
	keySfxInstWorkflow  = ".workflow"
	keySfxInstCtx       = ".ctx"
	keySfxInstStatus    = ".status"
	keySfxInstStarted   = ".started"
	keySfxInstDone      = ".done"
	keySfxInstResult    = ".result"
	keySfxInstCompleted = ".completed"
)

// key suffixes for the step bucket
const (
	keySfxStepName   = ".name"
	keySfxStepOutput = ".output"
	keySfxStepAt     = ".at"
)

// stepKey assembles the key prefix for step index of instanceID.
func stepKey(instanceID string, index int) string {
	return instanceID + "." + strconv.Itoa(index)
}

// kvSetInstance writes i to b.
func kvSetInstance(ctx context.Context, b kv.Bucket, i *storage.Instance) error {
	startedBytes, err := i.StartedAt.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal started time: %w", err)
	}
	return kv.SetMap(ctx, b, map[string][]byte{
		i.InstanceID + keySfxInstWorkflow: []byte(i.WorkflowName),
		i.InstanceID + keySfxInstCtx:      i.Context,
		i.InstanceID + keySfxInstStatus:   []byte(i.CustomStatus),
		i.InstanceID + keySfxInstStarted:  startedBytes,
	})
}

// kvGetInstance reads the instance for instanceID out of b.
func kvGetInstance(ctx context.Context, b kv.Bucket, instanceID string) (*storage.Instance, error) {
	if ok, err := b.Has(ctx, instanceID+keySfxInstWorkflow); err != nil {
		return nil, fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	}
	workflowName, err := b.Get(ctx, instanceID+keySfxInstWorkflow)
	if err != nil {
		return nil, fmt.Errorf("getting workflow name: %w", err)
	}
	i := &storage.Instance{
		InstanceID:   instanceID,
		WorkflowName: string(workflowName),
	}
	if i.Context, err = b.Get(ctx, instanceID+keySfxInstCtx); err != nil {
		return nil, fmt.Errorf("getting context: %w", err)
	}
	status, err := b.Get(ctx, instanceID+keySfxInstStatus)
	if err != nil {
		return nil, fmt.Errorf("getting custom status: %w", err)
	}
	i.CustomStatus = string(status)
	startedBytes, err := b.Get(ctx, instanceID+keySfxInstStarted)
	if err != nil {
		return nil, fmt.Errorf("getting started time: %w", err)
	}
	if err = i.StartedAt.UnmarshalText(startedBytes); err != nil {
		return nil, fmt.Errorf("unmarshal started time: %w", err)
	}
	if i.Done, err = b.Has(ctx, instanceID+keySfxInstDone); err != nil {
		return nil, fmt.Errorf("checking done: %w", err)
	}
	if !i.Done {
		return i, nil
	}
	if i.Result, err = b.Get(ctx, instanceID+keySfxInstResult); err != nil {
		return nil, fmt.Errorf("getting result: %w", err)
	}
	completedBytes, err := b.Get(ctx, instanceID+keySfxInstCompleted)
	if err != nil {
		return nil, fmt.Errorf("getting completed time: %w", err)
	}
	if err = i.CompletedAt.UnmarshalText(completedBytes); err != nil {
		return nil, fmt.Errorf("unmarshal completed time: %w", err)
	}
	return i, nil
}

// kvSetStepRecord writes sr for instanceID to b.
func kvSetStepRecord(ctx context.Context, b kv.Bucket, instanceID string, sr *storage.StepRecord) error {
	atBytes, err := sr.RecordedAt.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal recorded time: %w", err)
	}
	key := stepKey(instanceID, sr.Index)
	return kv.SetMap(ctx, b, map[string][]byte{
		key + keySfxStepName:   []byte(sr.Name),
		key + keySfxStepOutput: sr.Output,
		key + keySfxStepAt:     atBytes,
	})
}

// kvGetStepRecord reads the step record at index for instanceID out of b.
func kvGetStepRecord(ctx context.Context, b kv.Bucket, instanceID string, index int) (*storage.StepRecord, error) {
	key := stepKey(instanceID, index)
	name, err := b.Get(ctx, key+keySfxStepName)
	if err != nil {
		return nil, fmt.Errorf("getting step name: %w", err)
	}
	sr := &storage.StepRecord{
		Index: index,
		Name:  string(name),
	}
	if sr.Output, err = b.Get(ctx, key+keySfxStepOutput); err != nil {
		return nil, fmt.Errorf("getting step output: %w", err)
	}
	atBytes, err := b.Get(ctx, key+keySfxStepAt)
	if err != nil {
		return nil, fmt.Errorf("getting recorded time: %w", err)
	}
	if err = sr.RecordedAt.UnmarshalText(atBytes); err != nil {
		return nil, fmt.Errorf("unmarshal recorded time: %w", err)
	}
	return sr, nil
}

// kvDeleteInstance deletes the instance keys for instanceID from b.
// The terminal-state keys only exist for done instances.
func kvDeleteInstance(ctx context.Context, b kv.Bucket, instanceID string) error {
	var keys []string
	for _, sfx := range []string{
		keySfxInstWorkflow,
		keySfxInstCtx,
		keySfxInstStatus,
		keySfxInstStarted,
		keySfxInstDone,
		keySfxInstResult,
		keySfxInstCompleted,
	} {
		if ok, err := b.Has(ctx, instanceID+sfx); err != nil {
			return fmt.Errorf("checking %s: %w", instanceID+sfx, err)
		} else if ok {
			keys = append(keys, instanceID+sfx)
		}
	}
	return kv.DeleteSlice(ctx, b, keys)
}

// kvDeleteStepRecords deletes all step record keys for instanceID from b.
func kvDeleteStepRecords(ctx context.Context, b kv.TraversingBucket, instanceID string) error {
	var keys []string
	cancel := make(chan struct{})
	for k := range b.Keys(cancel) {
		if strings.HasPrefix(k, instanceID+".") {
			keys = append(keys, k)
		}
	}
	close(cancel)
	return kv.DeleteSlice(ctx, b, keys)
}

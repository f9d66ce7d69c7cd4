// Package kv implements a workflow engine storage backend using a key-value interface.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/utils/kv"
)

// KV is a workflow engine storage backend using a key-value interface.
type KV struct {
	mu        sync.RWMutex
	instStore kv.TraversingBucket
	stepStore kv.TraversingBucket
}

// New creates a new key-value workflow engine storage backend.
func New(instStore kv.TraversingBucket, stepStore kv.TraversingBucket) *KV {
	return &KV{
		instStore: instStore,
		stepStore: stepStore,
	}
}

// CreateInstance implements the storage interface method.
func (s *KV) CreateInstance(ctx context.Context, i *storage.Instance) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validating instance: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, err := s.instStore.Has(ctx, i.InstanceID+keySfxInstWorkflow); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceExists, i.InstanceID)
	}
	return kvSetInstance(ctx, s.instStore, i)
}

// RetrieveInstance implements the storage interface method.
func (s *KV) RetrieveInstance(ctx context.Context, instanceID string) (*storage.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return kvGetInstance(ctx, s.instStore, instanceID)
}

// RecordStepResult implements the storage interface method.
func (s *KV) RecordStepResult(ctx context.Context, instanceID string, sr *storage.StepRecord) error {
	if instanceID == "" {
		return storage.ErrMissingInstanceID
	}
	if err := sr.Validate(); err != nil {
		return fmt.Errorf("validating step record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, err := s.instStore.Has(ctx, instanceID+keySfxInstWorkflow); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	}
	if ok, err := s.stepStore.Has(ctx, stepKey(instanceID, sr.Index)+keySfxStepName); err != nil {
		return fmt.Errorf("checking step exists: %w", err)
	} else if ok {
		return fmt.Errorf("%w: step %d of %s", storage.ErrStepAlreadyRecorded, sr.Index, instanceID)
	}
	return kvSetStepRecord(ctx, s.stepStore, instanceID, sr)
}

// RetrieveStepRecord implements the storage interface method.
func (s *KV) RetrieveStepRecord(ctx context.Context, instanceID string, index int) (*storage.StepRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ok, err := s.stepStore.Has(ctx, stepKey(instanceID, index)+keySfxStepName); err != nil {
		return nil, false, fmt.Errorf("checking step exists: %w", err)
	} else if !ok {
		return nil, false, nil
	}
	sr, err := kvGetStepRecord(ctx, s.stepStore, instanceID, index)
	if err != nil {
		return nil, false, err
	}
	return sr, true, nil
}

// SetCustomStatus implements the storage interface method.
func (s *KV) SetCustomStatus(ctx context.Context, instanceID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, err := s.instStore.Has(ctx, instanceID+keySfxInstWorkflow); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	}
	return s.instStore.Set(ctx, instanceID+keySfxInstStatus, []byte(status))
}

// RecordInstanceResult implements the storage interface method.
func (s *KV) RecordInstanceResult(ctx context.Context, instanceID string, result []byte, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, err := s.instStore.Has(ctx, instanceID+keySfxInstWorkflow); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	}
	completedBytes, err := completedAt.MarshalText()
	if err != nil {
		return fmt.Errorf("marshal completed time: %w", err)
	}
	if err = s.instStore.Set(ctx, instanceID+keySfxInstResult, result); err != nil {
		return fmt.Errorf("setting result: %w", err)
	}
	if err = s.instStore.Set(ctx, instanceID+keySfxInstCompleted, completedBytes); err != nil {
		return fmt.Errorf("setting completed time: %w", err)
	}
	return s.instStore.Set(ctx, instanceID+keySfxInstDone, []byte("1"))
}

// instanceIDs lists the stored instance IDs.
// Assumes the read lock is held.
func (s *KV) instanceIDs(ctx context.Context) (ids []string, err error) {
	cancel := make(chan struct{})
	defer close(cancel)
	for k := range s.instStore.Keys(cancel) {
		if strings.HasSuffix(k, keySfxInstWorkflow) {
			ids = append(ids, strings.TrimSuffix(k, keySfxInstWorkflow))
		}
	}
	return
}

// RetrieveIncompleteInstances implements the storage interface method.
func (s *KV) RetrieveIncompleteInstances(ctx context.Context) ([]*storage.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.instanceIDs(ctx)
	if err != nil {
		return nil, err
	}
	var insts []*storage.Instance
	for _, id := range ids {
		inst, err := kvGetInstance(ctx, s.instStore, id)
		if errors.Is(err, storage.ErrInstanceNotFound) {
			continue
		} else if err != nil {
			return insts, fmt.Errorf("getting instance %s: %w", id, err)
		}
		if !inst.Done {
			insts = append(insts, inst)
		}
	}
	return insts, nil
}

// RetrieveCompletedBefore implements the storage interface method.
func (s *KV) RetrieveCompletedBefore(ctx context.Context, t time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.instanceIDs(ctx)
	if err != nil {
		return nil, err
	}
	var completed []string
	for _, id := range ids {
		inst, err := kvGetInstance(ctx, s.instStore, id)
		if errors.Is(err, storage.ErrInstanceNotFound) {
			continue
		} else if err != nil {
			return completed, fmt.Errorf("getting instance %s: %w", id, err)
		}
		if inst.Done && inst.CompletedAt.Before(t) {
			completed = append(completed, id)
		}
	}
	return completed, nil
}

// DeleteInstance implements the storage interface method.
func (s *KV) DeleteInstance(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := kvDeleteInstance(ctx, s.instStore, instanceID); err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}
	return kvDeleteStepRecords(ctx, s.stepStore, instanceID)
}

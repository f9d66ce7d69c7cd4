package main

import (
	"fmt"

	"github.com/iqrfcloud/gwcmd/workflow"
	"github.com/iqrfcloud/gwcmd/workflow/ping"
	"github.com/iqrfcloud/gwcmd/workflow/unbond"

	"github.com/micromdm/nanolib/log"
)

type registerer interface {
	RegisterWorkflow(w workflow.Workflow) error
}

func registerWorkflows(logger log.Logger, r registerer, s *storageConfig, strictDB bool) error {
	var w workflow.Workflow
	var err error

	uOpts := []unbond.Option{unbond.WithLogger(logger)}
	if strictDB {
		uOpts = append(uOpts, unbond.WithStrictDB())
	}
	if w, err = unbond.New(s.sensordb, uOpts...); err != nil {
		return fmt.Errorf("creating unbond workflow: %w", err)
	} else if err = r.RegisterWorkflow(w); err != nil {
		return fmt.Errorf("registering unbond workflow: %w", err)
	}

	if w, err = ping.New(ping.WithLogger(logger)); err != nil {
		return fmt.Errorf("creating ping workflow: %w", err)
	} else if err = r.RegisterWorkflow(w); err != nil {
		return fmt.Errorf("registering ping workflow: %w", err)
	}

	return nil
}

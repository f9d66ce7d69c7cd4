package engine

import (
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/workflow"
)

// RegisterWorkflow associates w with the engine by name.
func (e *Engine) RegisterWorkflow(w workflow.Workflow) error {
	e.workflowsMu.Lock()
	defer e.workflowsMu.Unlock()
	e.workflows[w.Name()] = w
	e.logger.Debug(logkeys.Message, "registered workflow", logkeys.WorkflowName, w.Name())
	return nil
}

// UnregisterWorkflow dissociates the named workflow from the engine by name.
func (e *Engine) UnregisterWorkflow(name string) error {
	e.workflowsMu.Lock()
	defer e.workflowsMu.Unlock()
	if _, ok := e.workflows[name]; ok {
		delete(e.workflows, name)
		e.logger.Debug(logkeys.Message, "unregistered workflow", logkeys.WorkflowName, name)
	} else {
		e.logger.Info(
			logkeys.Message, "unregistered workflow",
			logkeys.WorkflowName, name,
			logkeys.Error, "workflow name not found",
		)
	}
	return nil
}

// Workflow returns the registered workflow by name.
func (e *Engine) Workflow(name string) workflow.Workflow {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	return e.workflows[name]
}

// WorkflowRegistered returns true if the workflow name is registered.
func (e *Engine) WorkflowRegistered(name string) bool {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	_, ok := e.workflows[name]
	return ok
}

// Package http contains HTTP handlers that work with the workflow engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	gwcmdhttp "github.com/iqrfcloud/gwcmd/http"
	"github.com/iqrfcloud/gwcmd/http/api"
	"github.com/iqrfcloud/gwcmd/logkeys"
	"github.com/iqrfcloud/gwcmd/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoEngine  = errors.New("missing engine")
	ErrNoID      = errors.New("missing id parameter")
	ErrEmptyBody = errors.New("empty request body")
)

type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, name string, input []byte) (string, error)
}

type InstanceCanceller interface {
	CancelInstance(ctx context.Context, instanceID string) error
}

type InstanceStatuser interface {
	InstanceStatus(ctx context.Context, instanceID string) (*storage.Instance, error)
}

// StartWorkflowHandler creates a HandlerFunc that starts a workflow
// instance. The request body is the start request; its requestType
// field selects the workflow.
func StartWorkflowHandler(starter WorkflowStarter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if starter == nil {
			logger.Info(logkeys.Error, ErrNoEngine)
			api.JSONError(w, ErrNoEngine, 0)
			return
		}

		body, err := gwcmdhttp.ReadAllAndReplaceBody(r)
		if err != nil {
			logger.Info(logkeys.Message, "reading body", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		if len(body) < 1 {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrEmptyBody)
			api.JSONError(w, ErrEmptyBody, http.StatusBadRequest)
			return
		}

		req, err := workflow.ParseStartRequest(body)
		if err != nil {
			logger.Info(logkeys.Message, "parsing start request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.WorkflowName, req.RequestType)

		logger.Debug(logkeys.Message, "starting workflow")
		instanceID, err := starter.StartWorkflow(r.Context(), req.RequestType, body)
		if err != nil {
			logger.Info(logkeys.Message, "starting workflow", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		jsonResp := &struct {
			InstanceID string `json:"instance_id"`
			StatusURL  string `json:"status_url"`
		}{
			InstanceID: instanceID,
			StatusURL:  "/v1/instance/" + instanceID,
		}
		if err = json.NewEncoder(w).Encode(jsonResp); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// InstanceStatusHandler creates a HandlerFunc that returns the stored
// state of a workflow instance.
func InstanceStatusHandler(statuser InstanceStatuser, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if statuser == nil {
			logger.Info(logkeys.Error, ErrNoEngine)
			api.JSONError(w, ErrNoEngine, 0)
			return
		}

		instanceID := flow.Param(r.Context(), "id")
		if instanceID == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.InstanceID, instanceID)

		inst, err := statuser.InstanceStatus(r.Context(), instanceID)
		if errors.Is(err, storage.ErrInstanceNotFound) {
			logger.Debug(logkeys.Message, "instance status", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		} else if err != nil {
			logger.Info(logkeys.Message, "instance status", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		jsonResp := &struct {
			InstanceID   string          `json:"instance_id"`
			WorkflowName string          `json:"workflow_name"`
			CustomStatus json.RawMessage `json:"custom_status,omitempty"`
			StartedAt    string          `json:"started_at"`
			Done         bool            `json:"done"`
			Result       json.RawMessage `json:"result,omitempty"`
			CompletedAt  string          `json:"completed_at,omitempty"`
		}{
			InstanceID:   inst.InstanceID,
			WorkflowName: inst.WorkflowName,
			StartedAt:    inst.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			Done:         inst.Done,
		}
		if inst.CustomStatus != "" {
			jsonResp.CustomStatus = json.RawMessage(inst.CustomStatus)
		}
		if inst.Done {
			jsonResp.Result = inst.Result
			jsonResp.CompletedAt = inst.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		if err = json.NewEncoder(w).Encode(jsonResp); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// CancelInstanceHandler creates a HandlerFunc that cancels a running
// workflow instance.
func CancelInstanceHandler(canceller InstanceCanceller, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if canceller == nil {
			logger.Info(logkeys.Error, ErrNoEngine)
			api.JSONError(w, ErrNoEngine, 0)
			return
		}

		instanceID := flow.Param(r.Context(), "id")
		if instanceID == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}

		logger.Debug(logkeys.Message, "cancelling instance", logkeys.InstanceID, instanceID)
		if err := canceller.CancelInstance(r.Context(), instanceID); err != nil {
			logger.Info(logkeys.Message, "cancelling instance", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

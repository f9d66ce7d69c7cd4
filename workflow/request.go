package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingRequestType = errors.New("missing requestType")

// StartRequest is the parsed body of a workflow start request.
// RequestType selects the workflow class; the remaining fields are
// class-specific and validated by the workflow that consumes them.
type StartRequest struct {
	RequestType string `json:"requestType"`
	DevAddr     string `json:"devAddr,omitempty"`
	SensorID    string `json:"sensorID,omitempty"`
}

// ParseStartRequest decodes and validates a raw start request body.
func ParseStartRequest(raw []byte) (*StartRequest, error) {
	r := new(StartRequest)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("unmarshal start request: %w", err)
	}
	if r.RequestType == "" {
		return nil, ErrMissingRequestType
	}
	return r, nil
}

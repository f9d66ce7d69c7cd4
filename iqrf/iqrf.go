// Package iqrf models the IQRF gateway JSON API envelope.
//
// Outbound commands carry a correlation token in their msgId field which
// the gateway echoes back in the matching response. Command builders leave
// the MsgIDPlaceholder in the payload; the engine substitutes the real
// token just before publish.
package iqrf

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MsgIDPlaceholder is replaced with the correlation token before publish.
	MsgIDPlaceholder = "#MSG_ID#"

	// StatusStrInfoMissing is the gateway's "device is still asleep" sentinel.
	// An enumerate response carrying it means the device has not yet woken
	// to report its info.
	StatusStrInfoMissing = "info missing"
)

// IQRF JSON API message types.
const (
	MTypeEnumerate  = "iqmeshNetwork_EnumerateDevice"
	MTypeRemoveBond = "iqmeshNetwork_RemoveBond"
)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingMsgID  = errors.New("missing msgId field")
)

// RequestParams are the device-addressing parameters of a request.
type RequestParams struct {
	DeviceAddr string `json:"deviceAddr,omitempty"`
}

// Request is an outbound gateway command.
type Request struct {
	MsgID string         `json:"msgId"`
	MType string         `json:"mType,omitempty"`
	Req   *RequestParams `json:"req,omitempty"`
}

func newRequest(mType string, req *RequestParams) ([]byte, error) {
	return json.Marshal(&Request{
		MsgID: MsgIDPlaceholder,
		MType: mType,
		Req:   req,
	})
}

// EnumerateRequest builds a device-enumerate (status check) command for devAddr.
func EnumerateRequest(devAddr string) ([]byte, error) {
	return newRequest(MTypeEnumerate, &RequestParams{DeviceAddr: devAddr})
}

// RemoveBondRequest builds a remove-bonded-device command for devAddr.
func RemoveBondRequest(devAddr string) ([]byte, error) {
	return newRequest(MTypeRemoveBond, &RequestParams{DeviceAddr: devAddr})
}

// PingRequest builds a no-op command that the gateway merely echoes.
func PingRequest() ([]byte, error) {
	return newRequest("", nil)
}

// Data is the status portion of a gateway response.
type Data struct {
	Status    int             `json:"status"`
	StatusStr string          `json:"statusStr,omitempty"`
	Rsp       json.RawMessage `json:"rsp,omitempty"`
}

// Response is an inbound gateway message.
type Response struct {
	MsgID string `json:"msgId"`
	MType string `json:"mType,omitempty"`
	Data  Data   `json:"data"`
}

// Validate checks r for missing values.
func (r *Response) Validate() error {
	if r == nil {
		return ErrEmptyResponse
	}
	if r.MsgID == "" {
		return ErrMissingMsgID
	}
	return nil
}

// ParseResponse decodes a raw gateway message.
// Messages that do not decode or that lack the correlation field fail
// here, at the parse boundary, rather than deeper in workflow logic.
func ParseResponse(raw []byte) (*Response, error) {
	r := new(Response)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// DeviceError is a non-zero status explicitly reported by the gateway.
type DeviceError struct {
	Status    int
	StatusStr string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error (status %d): %s", e.Status, e.StatusStr)
}

// InfoMissing is true when the device has not yet woken up.
func (r *Response) InfoMissing() bool {
	return r.Data.StatusStr == StatusStrInfoMissing
}

// Err returns a *DeviceError if the response carries a non-zero status,
// nil otherwise.
func (r *Response) Err() error {
	if r.Data.Status != 0 {
		return &DeviceError{Status: r.Data.Status, StatusStr: r.Data.StatusStr}
	}
	return nil
}

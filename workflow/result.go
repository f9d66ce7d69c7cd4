package workflow

import "encoding/json"

// Result values for terminal workflow responses.
const (
	ResultOK    = "OK"
	ResultError = "Error"
)

// Result message catalog.
// Machine-readable enum values surfaced to workflow callers.
const (
	MsgDiscoveryError   = "DiscoveryError"
	MsgDiscoverySuccess = "DiscoverySuccess"

	MsgSmartConnectError   = "SmartConnectError"
	MsgSmartConnectSuccess = "SmartConnectSuccess"

	MsgUnbondError   = "UnbondError"
	MsgUnbondSuccess = "UnbondSuccess"

	MsgBondError   = "BondError"
	MsgBondSuccess = "BondSuccess"

	MsgEnumerateError   = "EnumerateError"
	MsgEnumerateSuccess = "EnumerateSuccess"

	MsgTaskAddError      = "TaskAddError"
	MsgTaskAddSuccess    = "TaskAddSuccess"
	MsgTaskRemoveError   = "TaskRemoveError"
	MsgTaskRemoveSuccess = "TaskRemoveSuccess"
	MsgTaskListError     = "TaskListError"
	MsgTaskListSuccess   = "TaskListSuccess"

	MsgCanceled      = "Canceled"
	MsgWorkflowError = "WorkflowError"
)

// Response is the structured terminal result of a workflow instance.
type Response struct {
	// machine-readable result code (ResultOK or ResultError)
	Result string `json:"result"`

	// human-readable message enum (one of the Msg catalog values)
	ResultMessage string `json:"resultMessage"`

	// diagnostic: the raw gateway status text or payload for this result
	GWLogMessage string `json:"gwLogMessage"`

	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// NewResponse creates a terminal workflow response.
func NewResponse(result, resultMessage, gwLogMessage string) *Response {
	return &Response{
		Result:        result,
		ResultMessage: resultMessage,
		GWLogMessage:  gwLogMessage,
	}
}

// JSON marshals r.
// All fields are strings; marshaling cannot fail.
func (r *Response) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

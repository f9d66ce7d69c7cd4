// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// the correlation token embedded in an outbound gateway command and
	// echoed back in its response.
	MsgID = "msg_id"

	// the IQRF network address of a device behind the gateway.
	DeviceAddr = "device_addr"

	SensorID = "sensor_id"

	InstanceID   = "instance_id"
	WorkflowName = "workflow_name"
	StepName     = "step_name"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)

// Package storage defines the sensor database interface.
//
// The sensor database is the system of record that maps sensors to the
// gateways they are bonded to. Workflows update it after the gateway
// has already been changed.
package storage

import "context"

// Storage updates sensor records.
type Storage interface {
	// ClearGatewayBinding removes the gateway association from the
	// sensor record for sensorID.
	ClearGatewayBinding(ctx context.Context, sensorID string) error
}

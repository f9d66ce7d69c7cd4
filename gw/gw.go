// Package gw defines interfaces for the gateway message transport.
package gw

import "context"

// CommandPublishers publish raw outbound command payloads to the gateway.
// Publishing is fire-and-forget from a workflow's perspective: the
// response, if any, arrives later and out-of-band on the inbound side.
type CommandPublisher interface {
	Publish(ctx context.Context, rawCmd []byte) error
}

// ResponseReceivers accept raw inbound gateway messages.
// Ostensibly this is the workflow engine's event router.
type ResponseReceiver interface {
	GatewayResponseEvent(ctx context.Context, raw []byte) error
}

// Package gwtest provides a scriptable in-process gateway for tests.
package gwtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/iqrfcloud/gwcmd/gw"
	"github.com/iqrfcloud/gwcmd/iqrf"
)

// GW is a simulated gateway.
//
// Published commands are parsed for their (already-substituted)
// correlation token. If a scripted response is queued, it is echoed back
// to the receiver with that token, mimicking the real gateway's msgId
// echo. With an empty queue the gateway stays silent, which exercises
// the caller's timeout path.
type GW struct {
	recv gw.ResponseReceiver

	mu        sync.Mutex
	queue     []iqrf.Data
	published [][]byte
}

// New creates a simulated gateway delivering responses to recv.
// A nil recv can be set later with SetReceiver.
func New(recv gw.ResponseReceiver) *GW {
	return &GW{recv: recv}
}

// SetReceiver sets the inbound message receiver.
// Helps untangle construction order: the engine wants its publisher at
// creation while the gateway delivers into the engine.
func (g *GW) SetReceiver(recv gw.ResponseReceiver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recv = recv
}

// Enqueue scripts the data portion of the next response(s), in order.
func (g *GW) Enqueue(data ...iqrf.Data) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, data...)
}

// PublishCount returns how many commands have been published.
func (g *GW) PublishCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.published)
}

// Published returns a copy of the published raw commands.
func (g *GW) Published() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := make([][]byte, len(g.published))
	copy(p, g.published)
	return p
}

// Publish implements gw.CommandPublisher.
func (g *GW) Publish(_ context.Context, rawCmd []byte) error {
	var req iqrf.Request
	if err := json.Unmarshal(rawCmd, &req); err != nil {
		return err
	}

	g.mu.Lock()
	g.published = append(g.published, rawCmd)
	recv := g.recv
	var data *iqrf.Data
	if len(g.queue) > 0 {
		data = &g.queue[0]
		g.queue = g.queue[1:]
	}
	g.mu.Unlock()

	if data == nil || recv == nil {
		// stay silent; the dispatcher's timeout covers us
		return nil
	}

	raw, err := json.Marshal(&iqrf.Response{
		MsgID: req.MsgID,
		MType: req.MType,
		Data:  *data,
	})
	if err != nil {
		return err
	}

	// deliver asynchronously like the real out-of-band channel
	go recv.GatewayResponseEvent(context.Background(), raw)
	return nil
}

package testhelpers

import (
	"sync"

	"github.com/Tyrowin/chatgate/internal/realtime"
)

// FakeConn is an in-memory realtime.Conn that records every queued frame.
type FakeConn struct {
	id      string
	actorID string

	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

// NewFakeConn returns a connection with the given identifiers.
func NewFakeConn(id, actorID string) *FakeConn {
	return &FakeConn{id: id, actorID: actorID}
}

func (c *FakeConn) ID() string      { return c.id }
func (c *FakeConn) ActorID() string { return c.actorID }

// Send records payload unless the connection refuses, mimicking a full or
// closed client.
func (c *FakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return true
}

// Refuse makes later sends fail.
func (c *FakeConn) Refuse() {
	c.mu.Lock()
	c.refuse = true
	c.mu.Unlock()
}

// Events decodes the recorded frames in arrival order.
func (c *FakeConn) Events() []realtime.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		env, err := realtime.Decode(f)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// EventNames lists the recorded event names in arrival order.
func (c *FakeConn) EventNames() []string {
	events := c.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Event
	}
	return out
}

// Package cluster carries broadcasts between gateway processes over NATS so
// a room can span connections held by different instances. Presence stays
// process-local.
package cluster

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject every instance publishes and subscribes to.
const DefaultSubject = "chatgate.fanout"

// Scope selects the recipients of an envelope.
type Scope string

const (
	ScopeRoom Scope = "room"
	ScopeAll  Scope = "all"
)

// Envelope is one broadcast on the bus. Except names a connection to skip
// (the typing sender); connection IDs are globally unique.
type Envelope struct {
	Scope   Scope  `json:"scope"`
	Room    string `json:"room,omitempty"`
	Except  string `json:"except,omitempty"`
	Payload []byte `json:"payload"`
}

// NATSBus publishes and receives envelopes on a single subject. NATS keeps
// per-publisher order on a subject and a subscription callback runs
// sequentially, so per-conversation order survives the hop.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	log     *slog.Logger
}

// Connect dials NATS, retrying while the server comes up.
func Connect(url, name string, logger *slog.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats_disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err == nil {
			break
		}
		logger.Info("waiting_for_nats", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	logger.Info("nats_connected", "url", nc.ConnectedUrl())
	return &NATSBus{nc: nc, subject: DefaultSubject, log: logger}, nil
}

// Publish sends env to every subscribed instance, this one included.
func (b *NATSBus) Publish(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe delivers every envelope on the subject to handler.
func (b *NATSBus) Subscribe(handler func(Envelope)) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn("invalid_fanout_envelope", "error", err)
			return
		}
		handler(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.sub = sub
	return nil
}

// Close drains the subscription and the connection.
func (b *NATSBus) Close() error {
	return b.nc.Drain()
}

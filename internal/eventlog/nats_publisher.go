package eventlog

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher republishes every event to opscore.events.<type> for
// external subscribers, giving Ops-Core a pluggable transport beyond its
// own in-process Bus and WebSocket hub, per spec.md §1's explicit
// "transport is pluggable" note. Modeled on the teacher's
// internal/nats/client.go wrapper.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to a NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[NATS] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("[NATS] reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[NATS] connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

// Record implements Sink, publishing evt as JSON to its type subject.
func (p *NATSPublisher) Record(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[NATS] marshal event %s: %v", evt.ID, err)
		return
	}
	subject := "opscore.events." + string(evt.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[NATS] publish event %s to %s: %v", evt.ID, subject, err)
	}
}

// Close closes the connection; it does not drain pending subscriptions.
func (p *NATSPublisher) Close() {
	p.conn.Close()
}

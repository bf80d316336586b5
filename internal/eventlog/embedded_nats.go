package eventlog

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedNATSConfig configures a locally-run NATS server, letting
// OPSCORE_EVENTS_NATS_EMBEDDED=true deployments get the pluggable
// transport without standing up a separate broker. Modeled on the
// teacher's internal/nats/server.go EmbeddedServerConfig.
type EmbeddedNATSConfig struct {
	Host string
	Port int
}

// EmbeddedNATS wraps a nats-server/v2 instance started in-process.
type EmbeddedNATS struct {
	server *natsserver.Server
}

// StartEmbeddedNATS starts a local NATS server and blocks until it is
// ready for connections or the readiness timeout elapses.
func StartEmbeddedNATS(cfg EmbeddedNATSConfig) (*EmbeddedNATS, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}

	opts := &natsserver.Options{
		Host:       host,
		Port:       port,
		NoLog:      false,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server not ready within 10s")
	}
	return &EmbeddedNATS{server: ns}, nil
}

// ClientURL returns the URL a NewNATSPublisher can dial.
func (e *EmbeddedNATS) ClientURL() string {
	return e.server.ClientURL()
}

// Shutdown stops the embedded server and waits for it to finish.
func (e *EmbeddedNATS) Shutdown() {
	e.server.Shutdown()
	e.server.WaitForShutdown()
}

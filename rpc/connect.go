package rpc

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// requestTimeout bounds request/reply calls made by this package.
const requestTimeout = 10 * time.Second

// Connect establishes a NATS connection with unlimited reconnects and
// debug logging of connection state changes.
func Connect(host, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Debug("NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Debug("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("NATS connect failed: %w", err)
	}
	slog.Debug("connected to NATS server", "host", host)
	return nc, nil
}

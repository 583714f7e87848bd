// Package nats publishes reports to a NATS subject.
package nats

import (
	"fmt"

	"FlowRadar/internal/config"
	"FlowRadar/internal/transport"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher is the subset of *nats.Conn the driver needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Driver publishes each report as one message on the configured subject.
// On a live connection the key is sent as the Nats-Msg-Id header.
type Driver struct {
	subject string
	conn    Publisher
}

func init() {
	transport.RegisterDriver("nats", func() transport.Driver { return &Driver{} })
}

// NewDriver creates a driver over an existing connection.
func NewDriver(conn Publisher, subject string) *Driver {
	return &Driver{conn: conn, subject: subject}
}

// Init connects to the NATS server.
func (d *Driver) Init(cfg config.PublishConfig) error {
	if cfg.NATS.Subject == "" {
		return fmt.Errorf("nats subject is not configured")
	}
	d.subject = cfg.NATS.Subject

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("flowradar"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Infof("Connected to NATS server at %s", nc.ConnectedUrl())
	d.conn = &headerConn{nc}
	return nil
}

// Send publishes data to the subject.
func (d *Driver) Send(key, data []byte) error {
	if hc, ok := d.conn.(*headerConn); ok {
		msg := nats.NewMsg(d.subject)
		msg.Header.Set(nats.MsgIdHdr, string(key))
		msg.Data = data
		return hc.PublishMsg(msg)
	}
	return d.conn.Publish(d.subject, data)
}

// Close drains and closes the NATS connection.
func (d *Driver) Close() error {
	if d.conn == nil {
		return nil
	}
	if err := d.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	log.Info("NATS connection drained and closed.")
	return nil
}

type headerConn struct {
	*nats.Conn
}
